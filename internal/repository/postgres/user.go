package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

// Optional text columns are NULL when empty, so unique constraints apply only to present values
const userColumns = `id, created_at, COALESCE(username, ''), COALESCE(email, ''), name, address, COALESCE(password_hash, ''), role`

const createUser = `-- name: CreateUser
INSERT INTO users (username, email, name, address, password_hash, role)
VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, p repository.CreateUserParams) (models.User, error) {
	role := p.Role
	if role == "" {
		role = models.RoleUser
	}

	rows, _ := r.DB.Query(ctx, createUser, p.Username, p.Email, p.Name, p.Address, p.PasswordHash, role)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case isUniqueViolation(err):
		return user, apperrors.ErrUserAlreadyExists
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return r.getOne(ctx, getUserByID, id)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + ` FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getOne(ctx, getUserByUsername, username)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, getUserByEmail, email)
}

const listUsers = `-- name: ListUsers
SELECT ` + userColumns + ` FROM users
ORDER BY id
`

func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, _ := r.DB.Query(ctx, listUsers)
	users, err := pgx.CollectRows(rows, rowToUser)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

const updateUser = `-- name: UpdateUser
UPDATE users
SET username = CASE WHEN $2::boolean THEN NULLIF($3, '') ELSE username END,
    email    = CASE WHEN $4::boolean THEN NULLIF($5, '') ELSE email END,
    name     = COALESCE($6, name),
    address  = COALESCE($7, address)
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateUser(ctx context.Context, id int64, p repository.UpdateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateUser,
		id,
		p.Username != nil, deref(p.Username),
		p.Email != nil, deref(p.Email),
		p.Name, p.Address,
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	case isUniqueViolation(err):
		return user, apperrors.ErrUserAlreadyExists
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const deleteUser = `-- name: DeleteUser
DELETE FROM users
WHERE id = $1
`

func (r *UserRepo) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.DB.Exec(ctx, deleteUser, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (models.User, error) {
	rows, _ := r.DB.Query(ctx, query, arg)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Email, &u.Name, &u.Address, &u.PasswordHash, &u.Role)
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
