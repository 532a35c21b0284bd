package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/repository"
	"github.com/nkiryanov/userdir/internal/repository/postgres"
	"github.com/nkiryanov/userdir/internal/testutil"
)

// Carry cookies set on the response into the next request, like a browser does
func nextRequest(t *testing.T, w *httptest.ResponseRecorder, prev *http.Request) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	set := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		set[c.Name] = true
		if c.MaxAge >= 0 && c.Value != "" {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	if prev != nil {
		for _, c := range prev.Cookies() {
			if !set[c.Name] {
				r.AddCookie(c)
			}
		}
	}
	return r
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatalf("session cookie is not set")
	return nil
}

func Test_Manager(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(m *Manager, userID int64)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			user, err := storage.User().CreateUser(t.Context(), repository.CreateUserParams{Username: "sess-user"})
			require.NoError(t, err)

			fn(New(Config{TTL: time.Hour, Secure: true}, storage), user.ID)
		})
	}

	t.Run("no cookie no user", func(t *testing.T) {
		withTx(t, func(m *Manager, _ int64) {
			_, err := m.UserID(t.Context(), httptest.NewRequest(http.MethodGet, "/", nil))

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("login binds user", func(t *testing.T) {
		withTx(t, func(m *Manager, userID int64) {
			w := httptest.NewRecorder()

			require.NoError(t, m.Login(t.Context(), w, httptest.NewRequest(http.MethodPost, "/", nil), userID))

			c := sessionCookie(t, w)
			assert.Len(t, c.Value, 64)
			assert.True(t, c.HttpOnly)
			assert.True(t, c.Secure)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			assert.Equal(t, 3600, c.MaxAge)

			got, err := m.UserID(t.Context(), nextRequest(t, w, nil))
			require.NoError(t, err)
			assert.Equal(t, userID, got)
		})
	})

	t.Run("login regenerates session id", func(t *testing.T) {
		withTx(t, func(m *Manager, userID int64) {
			first := httptest.NewRecorder()
			require.NoError(t, m.Login(t.Context(), first, httptest.NewRequest(http.MethodPost, "/", nil), userID))
			oldReq := nextRequest(t, first, nil)

			second := httptest.NewRecorder()
			require.NoError(t, m.Login(t.Context(), second, oldReq, userID))

			assert.NotEqual(t, sessionCookie(t, first).Value, sessionCookie(t, second).Value)
			_, err := m.UserID(t.Context(), oldReq)
			require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "old session id is dropped")
		})
	})

	t.Run("expired session", func(t *testing.T) {
		withTx(t, func(m *Manager, userID int64) {
			w := httptest.NewRecorder()
			require.NoError(t, m.Login(t.Context(), w, httptest.NewRequest(http.MethodPost, "/", nil), userID))

			m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
			_, err := m.UserID(t.Context(), nextRequest(t, w, nil))

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("oauth state on anonymous session", func(t *testing.T) {
		withTx(t, func(m *Manager, _ int64) {
			w := httptest.NewRecorder()
			require.NoError(t, m.SaveOAuthState(t.Context(), w, httptest.NewRequest(http.MethodGet, "/", nil), "nonce-1"))
			r := nextRequest(t, w, nil)

			_, err := m.UserID(t.Context(), r)
			require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "anonymous session has no user")

			state, err := m.TakeOAuthState(t.Context(), r)
			require.NoError(t, err)
			assert.Equal(t, "nonce-1", state)

			_, err = m.TakeOAuthState(t.Context(), r)
			require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "state is single use")
		})
	})

	t.Run("oauth state reuses existing session", func(t *testing.T) {
		withTx(t, func(m *Manager, userID int64) {
			login := httptest.NewRecorder()
			require.NoError(t, m.Login(t.Context(), login, httptest.NewRequest(http.MethodPost, "/", nil), userID))
			r := nextRequest(t, login, nil)

			w := httptest.NewRecorder()
			require.NoError(t, m.SaveOAuthState(t.Context(), w, r, "nonce-2"))
			assert.Empty(t, w.Result().Cookies(), "cookie is kept as is")

			state, err := m.TakeOAuthState(t.Context(), r)
			require.NoError(t, err)
			assert.Equal(t, "nonce-2", state)

			got, err := m.UserID(t.Context(), r)
			require.NoError(t, err)
			assert.Equal(t, userID, got)
		})
	})

	t.Run("oauth state on expired session starts a new one", func(t *testing.T) {
		withTx(t, func(m *Manager, userID int64) {
			login := httptest.NewRecorder()
			require.NoError(t, m.Login(t.Context(), login, httptest.NewRequest(http.MethodPost, "/", nil), userID))
			stale := nextRequest(t, login, nil)
			m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

			w := httptest.NewRecorder()
			require.NoError(t, m.SaveOAuthState(t.Context(), w, stale, "nonce-3"))

			fresh := sessionCookie(t, w)
			assert.NotEqual(t, sessionCookie(t, login).Value, fresh.Value, "expired session is not reused")

			state, err := m.TakeOAuthState(t.Context(), nextRequest(t, w, stale))
			require.NoError(t, err)
			assert.Equal(t, "nonce-3", state)
		})
	})

	t.Run("take state without cookie", func(t *testing.T) {
		withTx(t, func(m *Manager, _ int64) {
			_, err := m.TakeOAuthState(t.Context(), httptest.NewRequest(http.MethodGet, "/", nil))

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("logout", func(t *testing.T) {
		withTx(t, func(m *Manager, userID int64) {
			login := httptest.NewRecorder()
			require.NoError(t, m.Login(t.Context(), login, httptest.NewRequest(http.MethodPost, "/", nil), userID))
			r := nextRequest(t, login, nil)

			w := httptest.NewRecorder()
			require.NoError(t, m.Logout(t.Context(), w, r))

			assert.Equal(t, -1, sessionCookie(t, w).MaxAge, "cookie expired")
			_, err := m.UserID(t.Context(), r)
			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("purge expired", func(t *testing.T) {
		withTx(t, func(m *Manager, userID int64) {
			w := httptest.NewRecorder()
			require.NoError(t, m.Login(t.Context(), w, httptest.NewRequest(http.MethodPost, "/", nil), userID))
			r := nextRequest(t, w, nil)

			purged, err := m.PurgeExpired(t.Context())
			require.NoError(t, err)
			assert.Equal(t, int64(0), purged, "live session is kept")

			m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
			purged, err = m.PurgeExpired(t.Context())
			require.NoError(t, err)
			assert.Equal(t, int64(1), purged)

			m.now = time.Now
			_, err = m.UserID(t.Context(), r)
			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})
}
