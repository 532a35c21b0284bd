package repository

import (
	"context"
	"time"

	"github.com/nkiryanov/userdir/internal/models"
)

// Storage groups repositories that share one connection (or one transaction)
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Session() SessionRepo
	OAuthAccount() OAuthAccountRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type CreateUserParams struct {
	Username     string
	Email        string
	Name         string
	Address      string
	PasswordHash string
	Role         models.Role
}

// Nil fields are left untouched
type UpdateUserParams struct {
	Username *string
	Email    *string
	Name     *string
	Address  *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If username or email is taken has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id, username or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, userID int64, params UpdateUserParams) (models.User, error)
	DeleteUser(ctx context.Context, userID int64) error
}

// RefreshToken repository interface
// All lookups are done by sha-256 hex digest of the raw token
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it expired or revoked
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Same as Get but locks the row till the end of transaction
	GetForUpdate(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Mark token revoked. Must not overwrite 'revoked_at' of already revoked token
	// Returns false if nothing was revoked (token absent or revoked already)
	Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error)

	// Revoke every active token of the user, returns count of revoked tokens
	RevokeAllForUser(ctx context.Context, userID int64, at time.Time) (int64, error)
}

// Server side sessions. Sessions are looked up by sha-256 hex digest of the cookie value
type SessionRepo interface {
	Create(ctx context.Context, s models.Session) (models.Session, error)

	// Return not expired session or apperrors.ErrSessionNotFound
	Get(ctx context.Context, idHash string, now time.Time) (models.Session, error)

	// Must return apperrors.ErrSessionNotFound if there is no session or it expired by 'now'
	SetOAuthState(ctx context.Context, idHash string, state string, now time.Time) error

	// Clear the oauth state and return the value it had before
	// Must return apperrors.ErrSessionNotFound if there is no session or no state to take
	TakeOAuthState(ctx context.Context, idHash string, now time.Time) (string, error)

	Delete(ctx context.Context, idHash string) error

	// Delete sessions expired by 'now', returns count of deleted rows
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type OAuthAccountRepo interface {
	// If the pair (provider, providerUserID) is linked already must return apperrors.ErrUserAlreadyExists
	Link(ctx context.Context, account models.OAuthAccount) (models.OAuthAccount, error)

	// If link not found must return apperrors.ErrUserNotFound
	Get(ctx context.Context, provider string, providerUserID string) (models.OAuthAccount, error)
}
