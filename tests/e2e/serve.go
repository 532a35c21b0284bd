package e2e

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/userdir/internal/handlers"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/repository/postgres"
	"github.com/nkiryanov/userdir/internal/service/auth"
	"github.com/nkiryanov/userdir/internal/service/auth/accesstoken"
	"github.com/nkiryanov/userdir/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/userdir/internal/service/gateway"
	"github.com/nkiryanov/userdir/internal/service/session"
	"github.com/nkiryanov/userdir/internal/service/user"
	"github.com/nkiryanov/userdir/internal/testutil"
)

type Services struct {
	AuthService *auth.AuthService
	UserService *user.UserService
}

type Options struct {
	AccessTTL time.Duration
	APIKeys   []string
}

// Create db transaction and run server in with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.WithTx with it
func ServeWithTx(dbpool *pgxpool.Pool, t *testing.T, opts Options, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}

		// Initialize services
		codec, err := accesstoken.New(accesstoken.Config{SecretKey: "test-secret", TTL: opts.AccessTTL})
		require.NoError(t, err, "token codec should be created without errors")
		tokens, err := tokenmanager.New(tokenmanager.Config{}, storage)
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{Hasher: hasher}, storage, codec, tokens)
		require.NoError(t, err, "auth service starting error", err)
		us := user.NewService(hasher, storage)

		// Complete all together as router
		router := handlers.NewRouter(
			handlers.Config{APIKeys: opts.APIKeys},
			as,
			session.New(session.Config{}, storage),
			us,
			gateway.New(as),
			logger.NewNoOpLogger(),
		)

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{
			AuthService: as,
			UserService: us,
		})
	})
}
