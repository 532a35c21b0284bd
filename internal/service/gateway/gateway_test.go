package gateway

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/service/auth"
	"github.com/nkiryanov/userdir/internal/service/oauth"
)

type fakePasswords struct {
	identifier string
}

func (f *fakePasswords) Login(_ context.Context, identifier string, password string) (auth.LoginResult, error) {
	f.identifier = identifier
	if password != "pwd" {
		return auth.LoginResult{}, apperrors.ErrInvalidCredentials
	}
	return auth.LoginResult{
		Access: models.IssuedToken{Value: "access"},
		User:   models.User{ID: 1, Username: identifier},
	}, nil
}

type stateRecorder struct {
	states []string
	err    error
}

func (s *stateRecorder) save(_ context.Context, state string) error {
	if s.err != nil {
		return s.err
	}
	s.states = append(s.states, state)
	return nil
}

func newDispatcher(passwords PasswordLogin) *Dispatcher {
	app := oauth.AppConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}
	return New(passwords,
		oauth.NewGoogle(oauth.GoogleConfig{AppConfig: app}),
		oauth.NewFacebook(oauth.FacebookConfig{}), // not configured
	)
}

func Test_Dispatcher(t *testing.T) {
	t.Run("password providers", func(t *testing.T) {
		for _, provider := range []string{"", "password", "local"} {
			t.Run("provider="+provider, func(t *testing.T) {
				passwords := &fakePasswords{}
				states := &stateRecorder{}

				out, err := newDispatcher(passwords).Login(t.Context(), Request{Provider: provider, Username: "alice", Password: "pwd"}, states.save)

				require.NoError(t, err)
				assert.Equal(t, "password", out.Provider)
				require.NotNil(t, out.Login)
				assert.Equal(t, "access", out.Login.Access.Value)
				assert.Empty(t, out.RedirectURL)
				assert.Empty(t, states.states, "password login saves no state")
			})
		}
	})

	t.Run("username preferred over email", func(t *testing.T) {
		passwords := &fakePasswords{}

		_, err := newDispatcher(passwords).Login(t.Context(), Request{Username: "alice", Email: "alice@example.com", Password: "pwd"}, nil)

		require.NoError(t, err)
		assert.Equal(t, "alice", passwords.identifier)
	})

	t.Run("email used without username", func(t *testing.T) {
		passwords := &fakePasswords{}

		_, err := newDispatcher(passwords).Login(t.Context(), Request{Email: "alice@example.com", Password: "pwd"}, nil)

		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", passwords.identifier)
	})

	t.Run("missing credentials", func(t *testing.T) {
		for name, req := range map[string]Request{
			"no identifier": {Password: "pwd"},
			"no password":   {Username: "alice"},
			"blank":         {Username: "  ", Password: "pwd"},
		} {
			t.Run(name, func(t *testing.T) {
				_, err := newDispatcher(&fakePasswords{}).Login(t.Context(), req, nil)

				require.ErrorIs(t, err, apperrors.ErrMissingCredentials)
			})
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := newDispatcher(&fakePasswords{}).Login(t.Context(), Request{Username: "alice", Password: "wrong"}, nil)

		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("google redirect", func(t *testing.T) {
		states := &stateRecorder{}

		out, err := newDispatcher(&fakePasswords{}).Login(t.Context(), Request{Provider: "google"}, states.save)

		require.NoError(t, err)
		assert.Equal(t, "google", out.Provider)
		assert.Nil(t, out.Login)
		require.Len(t, states.states, 1)
		assert.Len(t, states.states[0], 32)

		u, err := url.Parse(out.RedirectURL)
		require.NoError(t, err)
		assert.Equal(t, states.states[0], u.Query().Get("state"), "saved state is the one sent to provider")
	})

	t.Run("states differ between logins", func(t *testing.T) {
		states := &stateRecorder{}
		d := newDispatcher(&fakePasswords{})

		_, err := d.Login(t.Context(), Request{Provider: "google"}, states.save)
		require.NoError(t, err)
		_, err = d.Login(t.Context(), Request{Provider: "google"}, states.save)
		require.NoError(t, err)

		require.Len(t, states.states, 2)
		assert.NotEqual(t, states.states[0], states.states[1])
	})

	t.Run("misconfigured provider", func(t *testing.T) {
		states := &stateRecorder{}

		_, err := newDispatcher(&fakePasswords{}).Login(t.Context(), Request{Provider: "facebook"}, states.save)

		require.ErrorIs(t, err, apperrors.ErrProviderMisconfigured)
		assert.Empty(t, states.states)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := newDispatcher(&fakePasswords{}).Login(t.Context(), Request{Provider: "twitter"}, nil)

		require.ErrorIs(t, err, apperrors.ErrUnsupportedProvider)
	})

	t.Run("state saver failure", func(t *testing.T) {
		states := &stateRecorder{err: errors.New("db down")}

		_, err := newDispatcher(&fakePasswords{}).Login(t.Context(), Request{Provider: "google"}, states.save)

		require.Error(t, err)
	})
}
