package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// Cleaner is anything that can sweep expired locks.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// RunSweeper calls CleanupExpired every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, c Cleaner, interval time.Duration, logger *slog.Logger) {
	logger = observability.LoggerOrDefault(logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.CleanupExpired(ctx)
			if err != nil {
				logger.Error("lock cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired locks removed", "count", n)
			}
		}
	}
}
