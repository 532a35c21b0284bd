package models

import (
	"time"
)

type Session struct {
	IDHash     string
	UserID     *int64  // nil for anonymous sessions
	OAuthState *string // nonce of a running oauth handshake
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type OAuthAccount struct {
	Provider       string
	ProviderUserID string
	UserID         int64
	CreatedAt      time.Time
}
