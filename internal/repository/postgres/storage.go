package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/userdir/internal/repository"
)

// Both *pgxpool.Pool and pgx.Tx satisfy it
// Begin on pgx.Tx starts a savepoint, so InTx nests safely inside test transactions
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{DB: s.db}
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{DB: s.db}
}

func (s *Storage) Session() repository.SessionRepo {
	return &SessionRepo{DB: s.db}
}

func (s *Storage) OAuthAccount() repository.OAuthAccountRepo {
	return &OAuthAccountRepo{DB: s.db}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}
