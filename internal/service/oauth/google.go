package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nkiryanov/userdir/internal/apperrors"
)

const googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type GoogleConfig struct {
	AppConfig

	// Optional, used in tests to point to fake endpoints
	Endpoint   *oauth2.Endpoint
	HTTPClient *http.Client

	// Resolves id_token signing keys. Google JWKS is fetched lazily if not set
	Keyfunc jwt.Keyfunc

	// JWKS location, googleCertsURL if not set
	CertsURL string
}

type Google struct {
	app    AppConfig
	oauth  *oauth2.Config
	client *http.Client

	certsURL string

	// Only a successful fetch is kept, failed one is retried on the next login
	keysMu sync.Mutex
	keys   jwt.Keyfunc
}

func NewGoogle(cfg GoogleConfig) *Google {
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	if cfg.CertsURL == "" {
		cfg.CertsURL = googleCertsURL
	}

	return &Google{
		app: cfg.AppConfig,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		client:   httpClientOrDefault(cfg.HTTPClient),
		certsURL: cfg.CertsURL,
		keys:     cfg.Keyfunc,
	}
}

func (g *Google) Name() string {
	return ProviderGoogle
}

func (g *Google) Configured() bool {
	return g.app.configured()
}

func (g *Google) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

type googleClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (g *Google) Identify(ctx context.Context, code string) (Identity, error) {
	token, err := g.oauth.Exchange(withClient(ctx, g.client), code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: code exchange failed: %w", apperrors.ErrOAuthIdentity, err)
	}

	rawID, _ := token.Extra("id_token").(string)
	if rawID == "" {
		return Identity{}, fmt.Errorf("%w: id_token is missing", apperrors.ErrOAuthIdentity)
	}

	// Not the caller's fault, so not ErrOAuthIdentity
	keys, err := g.keyfunc()
	if err != nil {
		return Identity{}, err
	}

	claims := &googleClaims{}
	_, err = jwt.ParseWithClaims(
		rawID,
		claims,
		keys,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(g.app.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: id_token is not valid: %w", apperrors.ErrOAuthIdentity, err)
	}

	if !validGoogleIssuer(claims.Issuer) {
		return Identity{}, fmt.Errorf("%w: unexpected issuer %q", apperrors.ErrOAuthIdentity, claims.Issuer)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: subject is missing", apperrors.ErrOAuthIdentity)
	}

	identity := Identity{Provider: ProviderGoogle, Subject: claims.Subject, Name: claims.Name}
	// Unverified addresses are not trusted for account linking
	if claims.EmailVerified {
		identity.Email = claims.Email
	}

	return identity, nil
}

func (g *Google) keyfunc() (jwt.Keyfunc, error) {
	g.keysMu.Lock()
	defer g.keysMu.Unlock()

	if g.keys != nil {
		return g.keys, nil
	}

	jwks, err := keyfunc.Get(g.certsURL, keyfunc.Options{
		Client:            g.client,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("can't load google certs: %w", err)
	}
	g.keys = jwks.Keyfunc

	return g.keys, nil
}

func validGoogleIssuer(iss string) bool {
	for _, valid := range googleIssuers {
		if iss == valid {
			return true
		}
	}
	return false
}
