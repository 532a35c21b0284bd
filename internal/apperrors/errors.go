package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Login failures are never split into "no such user" and "wrong password"
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("identifier and password are required")

	ErrInvalidToken = errors.New("invalid access token")

	// Public class of every refresh failure, the rest are details wrapped together with it
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrRefreshTokenOwner    = errors.New("refresh token belongs to another user")

	ErrUnsupportedProvider   = errors.New("unsupported provider")
	ErrProviderMisconfigured = errors.New("provider is not configured")
	ErrOAuthStateMismatch    = errors.New("invalid oauth state or code")
	ErrOAuthIdentity         = errors.New("provider identity could not be verified")

	ErrMissingAPIKey      = errors.New("missing api key")
	ErrInvalidAPIKey      = errors.New("invalid api key")
	ErrAPIKeyUnconfigured = errors.New("api key not configured")

	ErrNoCredentials   = errors.New("no credentials for scheme")
	ErrSessionNotFound = errors.New("session not found")
)
