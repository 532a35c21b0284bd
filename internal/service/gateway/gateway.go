package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/service/auth"
	"github.com/nkiryanov/userdir/internal/service/oauth"
)

const ProviderPassword = "password"

type Request struct {
	Provider string
	Username string
	Email    string
	Password string
}

// Result of the gateway login
// Password logins carry tokens, oauth logins carry the url to send the browser to
type Outcome struct {
	Provider    string
	Login       *auth.LoginResult
	RedirectURL string
}

// Persists oauth nonce so the callback can check it
type StateSaver func(ctx context.Context, state string) error

type PasswordLogin interface {
	Login(ctx context.Context, identifier string, password string) (auth.LoginResult, error)
}

// Dispatcher routes a login request to password authentication or an oauth provider
type Dispatcher struct {
	passwords PasswordLogin
	providers map[string]oauth.Provider
}

func New(passwords PasswordLogin, providers ...oauth.Provider) *Dispatcher {
	d := &Dispatcher{
		passwords: passwords,
		providers: make(map[string]oauth.Provider, len(providers)),
	}
	for _, p := range providers {
		d.providers[p.Name()] = p
	}
	return d
}

// Provider returns registered provider by name
func (d *Dispatcher) Provider(name string) (oauth.Provider, error) {
	p, ok := d.providers[name]
	if !ok {
		return nil, apperrors.ErrUnsupportedProvider
	}
	if !p.Configured() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProviderMisconfigured, name)
	}
	return p, nil
}

func (d *Dispatcher) Login(ctx context.Context, req Request, saveState StateSaver) (Outcome, error) {
	switch req.Provider {
	case "", ProviderPassword, "local":
		return d.loginWithPassword(ctx, req)
	}

	p, err := d.Provider(req.Provider)
	if err != nil {
		return Outcome{}, err
	}

	state, err := oauth.NewState()
	if err != nil {
		return Outcome{}, err
	}
	if err := saveState(ctx, state); err != nil {
		return Outcome{}, fmt.Errorf("can't save oauth state. Err: %w", err)
	}

	return Outcome{Provider: p.Name(), RedirectURL: p.AuthCodeURL(state)}, nil
}

func (d *Dispatcher) loginWithPassword(ctx context.Context, req Request) (Outcome, error) {
	// Username wins when both are given
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		return Outcome{}, apperrors.ErrMissingCredentials
	}

	res, err := d.passwords.Login(ctx, identifier, req.Password)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Provider: ProviderPassword, Login: &res}, nil
}
