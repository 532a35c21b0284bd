package auth

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/userdir/internal/authclient"
	"github.com/nkiryanov/userdir/internal/service/user"
	"github.com/nkiryanov/userdir/internal/testutil"
	"github.com/nkiryanov/userdir/tests/e2e"
)

type profile struct {
	User *authclient.User `json:"user"`
}

func refreshCookie(t *testing.T, jar http.CookieJar, srvURL string) string {
	t.Helper()
	u, err := url.Parse(srvURL)
	require.NoError(t, err)
	for _, c := range jar.Cookies(u) {
		if c.Name == "rt" {
			return c.Value
		}
	}
	return ""
}

func postRefresh(t *testing.T, srvURL, raw string) int {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srvURL+"/api/jwt/refresh", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "rt", Value: raw})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func Test_ClientSession(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	createUser := func(t *testing.T, s e2e.Services) {
		_, err := s.UserService.Create(context.Background(), user.CreateParams{
			Username: "ada",
			Email:    "ada@example.com",
			Name:     "Ada",
			Password: "StrongPassword1",
		})
		require.NoError(t, err)
	}

	t.Run("expired access token is refreshed transparently", func(t *testing.T) {
		e2e.ServeWithTx(pg.Pool, t, e2e.Options{AccessTTL: 2 * time.Second}, func(_ pgx.Tx, srvURL string, s e2e.Services) {
			createUser(t, s)

			jar, err := cookiejar.New(nil)
			require.NoError(t, err)
			client, err := authclient.New(srvURL, authclient.WithHTTPClient(&http.Client{Jar: jar}))
			require.NoError(t, err)

			_, err = client.Login(t.Context(), authclient.LoginRequest{Username: "ada", Password: "StrongPassword1"})
			require.NoError(t, err)
			firstToken := client.Token()
			firstRefresh := refreshCookie(t, jar, srvURL)
			require.NotEmpty(t, firstRefresh)

			// Let the access token expire
			time.Sleep(3100 * time.Millisecond)

			var p profile
			require.NoError(t, client.GetJSON(t.Context(), "/api/jwt/profile", &p))
			require.NotNil(t, p.User)
			assert.Equal(t, "ada", p.User.Username)

			assert.NotEqual(t, firstToken, client.Token(), "token was refreshed")
			assert.NotEqual(t, firstRefresh, refreshCookie(t, jar, srvURL), "refresh cookie rotated")

			assert.Equal(t, http.StatusUnauthorized, postRefresh(t, srvURL, firstRefresh), "reused refresh token is rejected")
		})
	})

	t.Run("logout ends the session", func(t *testing.T) {
		e2e.ServeWithTx(pg.Pool, t, e2e.Options{}, func(_ pgx.Tx, srvURL string, s e2e.Services) {
			createUser(t, s)

			jar, err := cookiejar.New(nil)
			require.NoError(t, err)
			flag := &authclient.MemoryFlag{}
			client, err := authclient.New(srvURL, authclient.WithHTTPClient(&http.Client{Jar: jar}), authclient.WithFlagStore(flag))
			require.NoError(t, err)

			_, err = client.Login(t.Context(), authclient.LoginRequest{Email: "ada@example.com", Password: "StrongPassword1"})
			require.NoError(t, err)
			raw := refreshCookie(t, jar, srvURL)

			require.NoError(t, client.Logout(t.Context()))

			set, err := flag.Get()
			require.NoError(t, err)
			assert.False(t, set)
			assert.Empty(t, client.Token())

			var p profile
			err = client.GetJSON(t.Context(), "/api/jwt/profile", &p)
			var apiErr *authclient.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

			assert.Equal(t, http.StatusUnauthorized, postRefresh(t, srvURL, raw), "revoked on logout")
		})
	})

	t.Run("wrong password", func(t *testing.T) {
		e2e.ServeWithTx(pg.Pool, t, e2e.Options{}, func(_ pgx.Tx, srvURL string, s e2e.Services) {
			createUser(t, s)

			client, err := authclient.New(srvURL)
			require.NoError(t, err)

			_, err = client.Login(t.Context(), authclient.LoginRequest{Username: "ada", Password: "nope"})

			var apiErr *authclient.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
			assert.Equal(t, "Invalid credentials", apiErr.Message)
		})
	})
}
