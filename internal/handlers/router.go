package handlers

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nkiryanov/userdir/internal/handlers/middleware"
	"github.com/nkiryanov/userdir/internal/handlers/render"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/repository"
	"github.com/nkiryanov/userdir/internal/service/auth"
	"github.com/nkiryanov/userdir/internal/service/gateway"
	"github.com/nkiryanov/userdir/internal/service/oauth"
	usersvc "github.com/nkiryanov/userdir/internal/service/user"
)

const DefaultFrontendURL = "http://localhost:5173/"

type Config struct {
	// Static keys accepted in x-api-key header
	APIKeys []string

	// Where oauth callback sends the browser after login
	FrontendURL string

	// Origins allowed to call API with credentials
	CORSOrigins []string
}

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	cfg Config,
	authService authService,
	sessionService sessionService,
	userService userService,
	gatewayService gatewayService,
	logger logger.Logger,
) http.Handler {
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = DefaultFrontendURL
	}

	sessionStrategy := middleware.SessionStrategy{Sessions: sessionService, Users: userService}
	bearerStrategy := middleware.BearerStrategy{Tokens: authService}
	apiKeyStrategy := middleware.APIKeyStrategy{Keys: cfg.APIKeys}
	basicStrategy := middleware.BasicStrategy{Passwords: authService}

	withBearer := middleware.Authenticate(logger, bearerStrategy)
	withSessionOrBearer := middleware.Authenticate(logger, sessionStrategy, bearerStrategy)
	withSessionOrBearerOrKey := middleware.Authenticate(logger, sessionStrategy, bearerStrategy, apiKeyStrategy)
	withAPIKey := middleware.Authenticate(logger, apiKeyStrategy)
	withBasic := middleware.Authenticate(logger, basicStrategy)

	api := http.NewServeMux()

	api.Handle("GET /health", handleHealth())

	api.Handle("POST /jwt/login", handleJWTLogin(authService, logger))
	api.Handle("POST /jwt/refresh", handleJWTRefresh(authService, logger))
	api.Handle("POST /jwt/logout", handleJWTLogout(authService, logger))
	api.Handle("GET /jwt/profile", withBearer(handleProfile(userService, logger)))

	api.Handle("POST /auth-gateway/login", handleGatewayLogin(gatewayService, authService, sessionService, logger))

	api.Handle("POST /auth/register", handleRegister(authService, sessionService, logger))
	api.Handle("POST /auth/login", handleSessionLogin(authService, sessionService, logger))
	api.Handle("POST /auth/logout", handleSessionLogout(sessionService, logger))
	api.Handle("GET /auth/me", handleSessionMe(sessionService, userService, logger))

	api.Handle("GET /oauth/{provider}/start", handleOAuthStart(gatewayService, sessionService, logger))
	api.Handle("GET /oauth/{provider}/callback", handleOAuthCallback(cfg.FrontendURL, gatewayService, sessionService, userService, logger))

	api.Handle("GET /users", handleListUsers(userService, logger))
	api.Handle("GET /users/{id}", handleGetUser(userService, logger))
	api.Handle("POST /users", withSessionOrBearer(handleCreateUser(userService, logger)))
	api.Handle("PUT /users/{id}", withSessionOrBearer(handleReplaceUser(userService, logger)))
	api.Handle("PATCH /users/{id}", withSessionOrBearer(handlePatchUser(userService, logger)))
	api.Handle("DELETE /users/{id}", withSessionOrBearerOrKey(handleDeleteUser(userService, logger)))

	api.Handle("GET /export/users", withAPIKey(handleExportUsers(userService, logger)))
	api.Handle("GET /secret", withBasic(handleSecret()))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		chimw.RequestID,
		middleware.LoggerMiddleware(logger),
		middleware.RecovererMiddleware(logger),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.APIKeyHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	return handler
}

type authService interface {
	// Has to return apperrors.ErrInvalidCredentials whatever the reason of failure is
	Login(ctx context.Context, identifier string, password string) (auth.LoginResult, error)
	VerifyPassword(ctx context.Context, identifier string, password string) (models.User, error)

	// Has to return apperrors.ErrInvalidToken for any token that is not accepted
	VerifyAccess(token string) (models.AccessClaims, error)

	// Has to return error wrapping apperrors.ErrInvalidRefreshToken for any token that can't be rotated
	Refresh(ctx context.Context, raw string) (models.TokenPair, error)
	Logout(ctx context.Context, raw string) error

	// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
	Register(ctx context.Context, p auth.RegisterParams) (models.User, error)

	SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken)
	ClearRefreshCookie(w http.ResponseWriter)
	RefreshFromRequest(r *http.Request) string
}

type sessionService interface {
	// Has to return apperrors.ErrSessionNotFound for anonymous requests
	UserID(ctx context.Context, r *http.Request) (int64, error)
	Login(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) error
	Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error

	SaveOAuthState(ctx context.Context, w http.ResponseWriter, r *http.Request, state string) error
	TakeOAuthState(ctx context.Context, r *http.Request) (string, error)
}

type userService interface {
	List(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, id int64) (models.User, error)
	Create(ctx context.Context, p usersvc.CreateParams) (models.User, error)
	Update(ctx context.Context, id int64, p repository.UpdateUserParams) (models.User, error)
	Delete(ctx context.Context, id int64) error
	ResolveOAuth(ctx context.Context, identity oauth.Identity) (models.User, error)
}

type gatewayService interface {
	Login(ctx context.Context, req gateway.Request, saveState gateway.StateSaver) (gateway.Outcome, error)
	Provider(name string) (oauth.Provider, error)
}

func serverError(w http.ResponseWriter, r *http.Request, l logger.Logger, msg string, err error) {
	logFor(r, l).Error(msg, "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}

func logFor(r *http.Request, l logger.Logger) logger.Logger {
	return logger.FromContext(r.Context(), l)
}
