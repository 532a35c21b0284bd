package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Run embedded migrations
// dsn: database source name in format postgres://... or postgresql://...
func Migrate(dsn string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("error while reading migrations. Err: %w", err)
	}

	// golang-migrate understands 'pgx5://...' only
	migrator, err := migrate.NewWithSourceInstance(
		"iofs",
		source,
		strings.NewReplacer(
			"postgres://", "pgx5://",
			"postgresql://", "pgx5://",
		).Replace(dsn),
	)
	if err != nil {
		return fmt.Errorf("error while preparing migrator. Err: %w", err)
	}
	defer migrator.Close() // nolint:errcheck

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error while applying migrations. Err: %w", err)
	}

	return nil
}

// Connect creates pool and checks the database is reachable
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database dsn. Err: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cant initialize connection pool. Err: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database is not reachable. Err: %w", err)
	}

	return pool, nil
}

func ConnectAndMigrate(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	err := Migrate(dsn)
	if err != nil {
		return nil, err
	}

	return Connect(ctx, dsn)
}
