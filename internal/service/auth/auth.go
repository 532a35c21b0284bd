package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/repository"
	"github.com/nkiryanov/userdir/internal/service/auth/accesstoken"
	"github.com/nkiryanov/userdir/internal/service/auth/tokenmanager"
)

const (
	DefaultRefreshCookieName = "rt"
)

type Config struct {
	// Hasher to use during registration or login
	// If not set BcryptHasher is used
	Hasher PasswordHasher

	// Refresh cookie name, "rt" if not set
	RefreshCookieName string

	// Set Secure attribute on cookies (production)
	SecureCookies bool
}

type LoginResult struct {
	Access  models.IssuedToken
	Refresh models.IssuedToken
	User    models.User
}

type RegisterParams struct {
	Username string
	Email    string
	Name     string
	Address  string
	Password string
}

// Auth service: password login, refresh rotation, logout and registration
type AuthService struct {
	storage  repository.Storage
	codec    *accesstoken.Codec
	tokens   *tokenmanager.Manager
	hasher   PasswordHasher
	verifier *Verifier

	refreshCookieName string
	secureCookies     bool

	// Clock, replaced in tests
	now func() time.Time
}

func NewService(cfg Config, storage repository.Storage, codec *accesstoken.Codec, tokens *tokenmanager.Manager) (*AuthService, error) {
	if storage == nil || codec == nil || tokens == nil {
		return nil, errors.New("storage, codec and token manager must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = DefaultRefreshCookieName
	}

	verifier, err := NewVerifier(storage.User(), hasher)
	if err != nil {
		return nil, err
	}

	return &AuthService{
		storage:           storage,
		codec:             codec,
		tokens:            tokens,
		hasher:            hasher,
		verifier:          verifier,
		refreshCookieName: cfg.RefreshCookieName,
		secureCookies:     cfg.SecureCookies,
		now:               time.Now,
	}, nil
}

// VerifyPassword checks credentials without issuing any token
func (s *AuthService) VerifyPassword(ctx context.Context, identifier string, password string) (models.User, error) {
	return s.verifier.VerifyPassword(ctx, identifier, password)
}

// VerifyAccess validates access token and returns its claims
func (s *AuthService) VerifyAccess(token string) (models.AccessClaims, error) {
	return s.codec.Verify(token)
}

func (s *AuthService) Login(ctx context.Context, identifier string, password string) (LoginResult, error) {
	user, err := s.verifier.VerifyPassword(ctx, identifier, password)
	if err != nil {
		return LoginResult{}, err
	}

	return s.issueFor(ctx, user)
}

// issueFor signs access token and issues refresh token for already authenticated user
func (s *AuthService) issueFor(ctx context.Context, user models.User) (LoginResult, error) {
	access, err := s.codec.Sign(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	refresh, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return LoginResult{Access: access, Refresh: refresh, User: user}, nil
}

// Refresh rotates the refresh token and signs new access token with the current user role
func (s *AuthService) Refresh(ctx context.Context, raw string) (models.TokenPair, error) {
	if raw == "" {
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenNotFound)
	}

	userID, err := s.tokens.Owner(ctx, raw)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
	case err != nil:
		return models.TokenPair{}, err
	}

	refresh, err := s.tokens.Rotate(ctx, raw, user.ID)
	if err != nil {
		return models.TokenPair{}, err
	}

	access, err := s.codec.Sign(user.ID, user.Role)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *AuthService) Logout(ctx context.Context, raw string) error {
	return s.tokens.Revoke(ctx, raw)
}

func (s *AuthService) Register(ctx context.Context, p RegisterParams) (models.User, error) {
	if (p.Username == "" && p.Email == "") || p.Password == "" {
		return models.User{}, apperrors.ErrMissingCredentials
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	return s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Username:     p.Username,
		Email:        p.Email,
		Name:         p.Name,
		Address:      p.Address,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
}

// SetRefreshCookie writes refresh token as http only cookie living as long as the token
func (s *AuthService) SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken) {
	maxAge := int(refresh.ExpiresAt.Sub(s.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     "/",
		Expires:  refresh.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// RefreshFromRequest returns raw refresh token from cookie or empty string if there is none
func (s *AuthService) RefreshFromRequest(r *http.Request) string {
	c, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
