package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/handlers/userctx"
	"github.com/nkiryanov/userdir/internal/models"
)

const APIKeyHeader = "x-api-key"

// Strategy authenticates request by one scheme
// apperrors.ErrNoCredentials means the request carries nothing for this scheme
type Strategy interface {
	Scheme() userctx.Scheme
	Authenticate(r *http.Request) (userctx.Identity, error)
}

type sessionReader interface {
	UserID(ctx context.Context, r *http.Request) (int64, error)
}

type userGetter interface {
	Get(ctx context.Context, id int64) (models.User, error)
}

type accessVerifier interface {
	VerifyAccess(token string) (models.AccessClaims, error)
}

type passwordVerifier interface {
	VerifyPassword(ctx context.Context, identifier string, password string) (models.User, error)
}

// Cookie session
type SessionStrategy struct {
	Sessions sessionReader
	Users    userGetter
}

func (s SessionStrategy) Scheme() userctx.Scheme {
	return userctx.SchemeSession
}

func (s SessionStrategy) Authenticate(r *http.Request) (userctx.Identity, error) {
	userID, err := s.Sessions.UserID(r.Context(), r)
	if err != nil {
		return userctx.Identity{}, err
	}

	user, err := s.Users.Get(r.Context(), userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return userctx.Identity{}, apperrors.ErrSessionNotFound
	case err != nil:
		return userctx.Identity{}, err
	}

	return userctx.Identity{UserID: user.ID, Role: user.Role, Scheme: userctx.SchemeSession}, nil
}

// Authorization: Bearer <access token>
type BearerStrategy struct {
	Tokens accessVerifier
}

func (s BearerStrategy) Scheme() userctx.Scheme {
	return userctx.SchemeBearer
}

func (s BearerStrategy) Authenticate(r *http.Request) (userctx.Identity, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || scheme != "Bearer" || token == "" {
		return userctx.Identity{}, apperrors.ErrNoCredentials
	}

	claims, err := s.Tokens.VerifyAccess(token)
	if err != nil {
		return userctx.Identity{}, err
	}

	return userctx.Identity{UserID: claims.UserID, Role: claims.Role, Scheme: userctx.SchemeBearer}, nil
}

// Static keys in x-api-key header
type APIKeyStrategy struct {
	Keys []string
}

func (s APIKeyStrategy) Scheme() userctx.Scheme {
	return userctx.SchemeAPIKey
}

func (s APIKeyStrategy) Authenticate(r *http.Request) (userctx.Identity, error) {
	provided := r.Header.Get(APIKeyHeader)
	if provided == "" {
		return userctx.Identity{}, apperrors.ErrMissingAPIKey
	}
	if len(s.Keys) == 0 {
		return userctx.Identity{}, apperrors.ErrAPIKeyUnconfigured
	}

	matched := 0
	for _, key := range s.Keys {
		matched |= subtle.ConstantTimeCompare([]byte(key), []byte(provided))
	}
	if matched != 1 {
		return userctx.Identity{}, apperrors.ErrInvalidAPIKey
	}

	return userctx.Identity{Scheme: userctx.SchemeAPIKey}, nil
}

// Authorization: Basic base64(username:password)
type BasicStrategy struct {
	Passwords passwordVerifier
}

func (s BasicStrategy) Scheme() userctx.Scheme {
	return userctx.SchemeBasic
}

func (s BasicStrategy) Authenticate(r *http.Request) (userctx.Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok || username == "" || password == "" {
		return userctx.Identity{}, apperrors.ErrNoCredentials
	}

	user, err := s.Passwords.VerifyPassword(r.Context(), username, password)
	if err != nil {
		return userctx.Identity{}, err
	}

	return userctx.Identity{UserID: user.ID, Role: user.Role, Scheme: userctx.SchemeBasic}, nil
}

// ParseAPIKeys splits comma separated list dropping blanks
func ParseAPIKeys(list string) []string {
	var keys []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func describe(s Strategy, err error) string {
	return fmt.Sprintf("%s: %v", s.Scheme(), err)
}
