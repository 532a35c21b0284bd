package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"

	defaultHTTPTimeout = 10 * time.Second
)

// Identity of the user as the provider reports it
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// External identity provider speaking authorization code flow
type Provider interface {
	Name() string

	// Client id, secret and redirect url are all set
	Configured() bool

	AuthCodeURL(state string) string

	// Exchange the code and return verified user identity
	Identify(ctx context.Context, code string) (Identity, error)
}

// Credentials of the registered application
type AppConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c AppConfig) configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// NewState returns random 128-bit hex nonce for the 'state' parameter
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generate oauth state. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// Route oauth2 library requests through our client
func withClient(ctx context.Context, c *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c)
}
