package janitor

import (
	"context"
	"time"

	"github.com/nkiryanov/userdir/internal/logger"
)

const DefaultInterval = 10 * time.Minute

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically removes expired sessions
type Janitor struct {
	interval time.Duration
	sessions purger
	logger   logger.Logger
}

func New(interval time.Duration, sessions purger, logger logger.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		interval: interval,
		sessions: sessions,
		logger:   logger,
	}
}

// Run purges on every tick until ctx is done
// The returned channel is closed when the janitor stopped
func (j *Janitor) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	j.logger.Debug("Starting janitor", "interval", j.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Debug("Janitor stopped by context")
				return

			case <-ticker.C:
				purged, err := j.sessions.PurgeExpired(ctx)
				if err != nil {
					if ctx.Err() == nil {
						j.logger.Error("Failed to purge expired sessions", "error", err)
					}
					continue
				}
				if purged > 0 {
					j.logger.Info("Expired sessions purged", "count", purged)
				}
			}
		}
	}()

	return idleStopped
}
