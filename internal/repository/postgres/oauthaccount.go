package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
)

type OAuthAccountRepo struct {
	DB DBTX
}

const linkAccount = `-- name: LinkOAuthAccount
INSERT INTO oauth_accounts (provider, provider_user_id, user_id)
VALUES ($1, $2, $3)
RETURNING provider, provider_user_id, user_id, created_at
`

func (r *OAuthAccountRepo) Link(ctx context.Context, a models.OAuthAccount) (models.OAuthAccount, error) {
	rows, _ := r.DB.Query(ctx, linkAccount, a.Provider, a.ProviderUserID, a.UserID)
	linked, err := pgx.CollectOneRow(rows, rowToOAuthAccount)

	switch {
	case err == nil:
		return linked, nil
	case isUniqueViolation(err):
		return linked, apperrors.ErrUserAlreadyExists
	default:
		return linked, fmt.Errorf("db error: %w", err)
	}
}

const getAccount = `-- name: GetOAuthAccount
SELECT provider, provider_user_id, user_id, created_at
FROM oauth_accounts
WHERE provider = $1 AND provider_user_id = $2
`

func (r *OAuthAccountRepo) Get(ctx context.Context, provider string, providerUserID string) (models.OAuthAccount, error) {
	rows, _ := r.DB.Query(ctx, getAccount, provider, providerUserID)
	a, err := pgx.CollectOneRow(rows, rowToOAuthAccount)

	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, pgx.ErrNoRows):
		return a, apperrors.ErrUserNotFound
	default:
		return a, fmt.Errorf("db error: %w", err)
	}
}

func rowToOAuthAccount(row pgx.CollectableRow) (models.OAuthAccount, error) {
	var a models.OAuthAccount
	err := row.Scan(&a.Provider, &a.ProviderUserID, &a.UserID, &a.CreatedAt)
	return a, err
}
