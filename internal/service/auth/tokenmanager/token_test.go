package tokenmanager

import (
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/repository/postgres"
	"github.com/nkiryanov/userdir/internal/testutil"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	const userID int64 = 42

	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(m *Manager)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			m, err := New(Config{RefreshTTL: 24 * time.Hour}, postgres.NewStorage(tx))
			require.NoError(t, err, "token manager should be created without errors")

			fn(m)
		})
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{}, postgres.NewStorage(pg.Pool))

		require.NoError(t, err)
		assert.Equal(t, DefaultRefreshTTL, m.TTL())
	})

	t.Run("new fails without storage", func(t *testing.T) {
		_, err := New(Config{}, nil)

		require.Error(t, err)
	})

	t.Run("hash token", func(t *testing.T) {
		// sha-256 of "abc"
		assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashToken("abc"))
	})

	t.Run("Issue", func(t *testing.T) {
		t.Run("stores only the hash", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				issued, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)

				assert.Len(t, issued.Value, 64, "32 random bytes hex encoded")
				assert.WithinDuration(t, time.Now().Add(24*time.Hour), issued.ExpiresAt, time.Second)

				_, err = m.storage.Refresh().Get(t.Context(), issued.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "raw value is not stored")

				stored, err := m.storage.Refresh().Get(t.Context(), HashToken(issued.Value))
				require.NoError(t, err)
				assert.Equal(t, userID, stored.UserID)
				assert.False(t, stored.IsRevoked())
			})
		})

		t.Run("tokens are unique", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				first, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)
				second, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)

				assert.NotEqual(t, first.Value, second.Value)
			})
		})
	})

	t.Run("Rotate", func(t *testing.T) {
		t.Run("rotate once ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				old, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)

				rotated, err := m.Rotate(t.Context(), old.Value, userID)

				require.NoError(t, err)
				assert.NotEqual(t, old.Value, rotated.Value)

				stored, err := m.storage.Refresh().Get(t.Context(), HashToken(old.Value))
				require.NoError(t, err)
				assert.True(t, stored.IsRevoked(), "old token revoked after rotation")

				owner, err := m.Owner(t.Context(), rotated.Value)
				require.NoError(t, err)
				assert.Equal(t, userID, owner)
			})
		})

		t.Run("fail if reused", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				old, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)
				_, err = m.Rotate(t.Context(), old.Value, userID)
				require.NoError(t, err)

				_, err = m.Rotate(t.Context(), old.Value, userID)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			})
		})

		t.Run("fail if other owner", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				old, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)

				_, err = m.Rotate(t.Context(), old.Value, userID+1)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenOwner)

				_, err = m.Rotate(t.Context(), old.Value, userID)
				require.NoError(t, err, "failed rotation leaves the token active")
			})
		})

		t.Run("fail if expired", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				old, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)

				m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
				_, err = m.Rotate(t.Context(), old.Value, userID)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
			})
		})

		t.Run("fail if unknown", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				_, err := m.Rotate(t.Context(), "unknown", userID)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
			})
		})
	})

	t.Run("Owner", func(t *testing.T) {
		t.Run("revoked token has no owner", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				issued, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)
				require.NoError(t, m.Revoke(t.Context(), issued.Value))

				_, err = m.Owner(t.Context(), issued.Value)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})

		t.Run("unknown token", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				_, err := m.Owner(t.Context(), "unknown")

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})
	})

	t.Run("Revoke", func(t *testing.T) {
		t.Run("idempotent", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *Manager) {
				issued, err := m.Issue(t.Context(), userID)
				require.NoError(t, err)

				require.NoError(t, m.Revoke(t.Context(), issued.Value))
				require.NoError(t, m.Revoke(t.Context(), issued.Value))
				require.NoError(t, m.Revoke(t.Context(), "unknown"))
				require.NoError(t, m.Revoke(t.Context(), ""))
			})
		})
	})

	// Runs on the pool directly, concurrent transactions can't share one test transaction
	t.Run("concurrent rotation has single winner", func(t *testing.T) {
		m, err := New(Config{}, postgres.NewStorage(pg.Pool))
		require.NoError(t, err)

		const racer int64 = 777
		old, err := m.Issue(t.Context(), racer)
		require.NoError(t, err)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = m.Rotate(t.Context(), old.Value, racer)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
		}
		assert.Equal(t, 1, succeeded, "exactly one rotation wins")
	})
}
