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

type SessionRepo struct {
	DB DBTX
}

const sessionColumns = `id_hash, user_id, oauth_state, created_at, expires_at`

const createSession = `-- name: CreateSession
INSERT INTO sessions (id_hash, user_id, oauth_state, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + sessionColumns

func (r *SessionRepo) Create(ctx context.Context, s models.Session) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, createSession, s.IDHash, s.UserID, s.OAuthState, s.CreatedAt, s.ExpiresAt)
	created, err := pgx.CollectOneRow(rows, rowToSession)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const getSession = `-- name: GetSession
SELECT ` + sessionColumns + `
FROM sessions
WHERE id_hash = $1 AND expires_at > $2
`

func (r *SessionRepo) Get(ctx context.Context, idHash string, now time.Time) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getSession, idHash, now)
	s, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s, apperrors.ErrSessionNotFound
	default:
		return s, fmt.Errorf("db error: %w", err)
	}
}

const setOAuthState = `-- name: SetSessionOAuthState
UPDATE sessions
SET oauth_state = $2
WHERE id_hash = $1 AND expires_at > $3
`

func (r *SessionRepo) SetOAuthState(ctx context.Context, idHash string, state string, now time.Time) error {
	tag, err := r.DB.Exec(ctx, setOAuthState, idHash, state, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

// UPDATE ... RETURNING gives the new values only, so the old state is read in a locking CTE
const takeOAuthState = `-- name: TakeSessionOAuthState
WITH prev AS (
    SELECT id_hash, oauth_state
    FROM sessions
    WHERE id_hash = $1 AND expires_at > $2 AND oauth_state IS NOT NULL
    FOR UPDATE
)
UPDATE sessions s
SET oauth_state = NULL
FROM prev
WHERE s.id_hash = prev.id_hash
RETURNING prev.oauth_state
`

func (r *SessionRepo) TakeOAuthState(ctx context.Context, idHash string, now time.Time) (string, error) {
	rows, _ := r.DB.Query(ctx, takeOAuthState, idHash, now)
	state, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", apperrors.ErrSessionNotFound
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}

const deleteSession = `-- name: DeleteSession
DELETE FROM sessions
WHERE id_hash = $1
`

func (r *SessionRepo) Delete(ctx context.Context, idHash string) error {
	_, err := r.DB.Exec(ctx, deleteSession, idHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteExpiredSessions = `-- name: DeleteExpiredSessions
DELETE FROM sessions
WHERE expires_at <= $1
`

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredSessions, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.IDHash, &s.UserID, &s.OAuthState, &s.CreatedAt, &s.ExpiresAt)
	return s, err
}
