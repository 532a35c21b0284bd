package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/userdir/internal/db"
	"github.com/nkiryanov/userdir/internal/handlers"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/repository/postgres"
	"github.com/nkiryanov/userdir/internal/service/auth"
	"github.com/nkiryanov/userdir/internal/service/auth/accesstoken"
	"github.com/nkiryanov/userdir/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/userdir/internal/service/gateway"
	"github.com/nkiryanov/userdir/internal/service/janitor"
	"github.com/nkiryanov/userdir/internal/service/oauth"
	"github.com/nkiryanov/userdir/internal/service/session"
	"github.com/nkiryanov/userdir/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger
	Janitor    *janitor.Janitor

	pool *pgxpool.Pool
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}
	if c.EphemeralSecret {
		logger.Warn("SECRET_KEY is not set, generated ephemeral one. Tokens will not survive restart")
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	codec, err := accesstoken.New(accesstoken.Config{SecretKey: c.SecretKey, TTL: c.ttl(c.AccessTTL)})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating token codec. Err: %w", err)
	}
	tokens, err := tokenmanager.New(tokenmanager.Config{RefreshTTL: c.ttl(c.RefreshTTL)}, storage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	hasher := auth.BcryptHasher{}
	authService, err := auth.NewService(auth.Config{Hasher: hasher, SecureCookies: c.Secure()}, storage, codec, tokens)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	sessions := session.New(session.Config{TTL: c.ttl(c.SessionTTL), Secure: c.Secure()}, storage)
	userService := user.NewService(hasher, storage)

	google := oauth.NewGoogle(oauth.GoogleConfig{AppConfig: oauth.AppConfig{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.GoogleRedirectURI,
	}})
	facebook := oauth.NewFacebook(oauth.FacebookConfig{AppConfig: oauth.AppConfig{
		ClientID:     c.FacebookAppID,
		ClientSecret: c.FacebookAppSecret,
		RedirectURL:  c.FacebookCallbackURL,
	}})
	for _, p := range []oauth.Provider{google, facebook} {
		if !p.Configured() {
			logger.Info("oauth provider is not configured", "provider", p.Name())
		}
	}
	dispatcher := gateway.New(authService, google, facebook)

	apiKeys := c.apiKeys()
	if len(apiKeys) == 0 {
		logger.Warn("no API keys configured, api key protected routes answer 500")
	}

	router := handlers.NewRouter(
		handlers.Config{APIKeys: apiKeys, FrontendURL: c.FrontendURL, CORSOrigins: c.corsOrigins()},
		authService,
		sessions,
		userService,
		dispatcher,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    router,
		Logger:     logger,
		Janitor:    janitor.New(c.ttl(c.PurgeInterval), sessions, logger),
		pool:       pool,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	janitorStopped := s.Janitor.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-janitorStopped

	return err
}
