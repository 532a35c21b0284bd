package models

import (
	"time"

	"github.com/google/uuid"
)

// Refresh token record. The raw value is never stored, only its sha-256 hex digest
type RefreshToken struct {
	ID        uuid.UUID
	UserID    int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time // nil while the token is active
}

func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t RefreshToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Verified access token payload
type AccessClaims struct {
	UserID    int64
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
