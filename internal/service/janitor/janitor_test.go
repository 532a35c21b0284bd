package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/userdir/internal/logger"
)

type purgeFunc func(ctx context.Context) (int64, error)

func (f purgeFunc) PurgeExpired(ctx context.Context) (int64, error) {
	return f(ctx)
}

func TestJanitor(t *testing.T) {
	t.Run("purges on every tick", func(t *testing.T) {
		var calls atomic.Int64
		j := New(5*time.Millisecond, purgeFunc(func(context.Context) (int64, error) {
			calls.Add(1)
			return 1, nil
		}), logger.NewNoOpLogger())

		ctx, cancel := context.WithCancel(t.Context())
		stopped := j.Run(ctx)

		require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("janitor did not stop on context cancel")
		}
	})

	t.Run("keeps running after failure", func(t *testing.T) {
		var calls atomic.Int64
		j := New(5*time.Millisecond, purgeFunc(func(context.Context) (int64, error) {
			calls.Add(1)
			return 0, errors.New("db is down")
		}), logger.NewNoOpLogger())

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		j.Run(ctx)

		require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("default interval", func(t *testing.T) {
		j := New(0, purgeFunc(func(context.Context) (int64, error) { return 0, nil }), logger.NewNoOpLogger())

		assert.Equal(t, DefaultInterval, j.interval)
	})
}
