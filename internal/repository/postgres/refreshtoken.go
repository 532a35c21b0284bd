package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshTokenColumns = `id, user_id, token_hash, created_at, expires_at, revoked_at`

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + refreshTokenColumns

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken, token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.RevokedAt)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getToken = `-- name: GetRefreshToken
SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE token_hash = $1
`

// Get token
// It returns the token even if it is expired or revoked
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	return r.getOne(ctx, getToken, tokenHash)
}

const getTokenForUpdate = getToken + `FOR UPDATE`

// Lock the token row till the end of the current transaction
// Concurrent callers wait here and then see the committed 'revoked_at'
func (r *RefreshTokenRepo) GetForUpdate(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	return r.getOne(ctx, getTokenForUpdate, tokenHash)
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL
`

// Mark token revoked
// Already revoked tokens keep their original 'revoked_at'
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	tag, err := r.DB.Exec(ctx, revokeToken, tokenHash, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const revokeUserTokens = `-- name: RevokeUserRefreshTokens
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeUserTokens, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepo) getOne(ctx context.Context, query string, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, query, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt)
	return t, err
}
