package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/felixgeelhaar/reservo/internal/app"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/reservo/pkg/config"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := observability.NewLogger(observability.DefaultLogConfig("reservo-worker"))
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfigFor("reservo-worker", cfg.LogLevel, cfg.LogFormat, cfg.AppEnv))
	logger.Info("starting reservo worker", "version", app.Version, "env", cfg.AppEnv)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "initialize container")
	}
	defer container.Close()

	if err := container.Dispatcher.Start(ctx); err != nil {
		return errors.Wrap(err, "start outbox dispatcher")
	}
	logger.Info("outbox dispatcher started",
		"owner", container.InstanceID(),
		"workers", cfg.OutboxWorkers,
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
		"max_retries", cfg.OutboxMaxRetries,
	)

	go lock.RunSweeper(ctx, container.LockTable, cfg.LockCleanupInterval, logger)
	go runRetention(ctx, container, cfg, logger)
	if cfg.OutboxStatsInterval > 0 {
		go runStatsLogger(ctx, container, cfg.OutboxStatsInterval, logger)
	}

	if cfg.HealthAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HealthAddr,
			Handler:           newHealthHandler(container),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("health server starting", "addr", cfg.HealthAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	container.Dispatcher.Stop()
	return nil
}

// runRetention purges published events older than OUTBOX_RETENTION.
func runRetention(ctx context.Context, c *app.Container, cfg *config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Dispatcher.PurgePublished(ctx, cfg.OutboxRetention); err != nil {
				logger.Error("outbox cleanup failed", "error", err)
			}
		}
	}
}

func runStatsLogger(ctx context.Context, c *app.Container, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStats(ctx, c, logger)
		}
	}
}

func logStats(ctx context.Context, c *app.Container, logger *slog.Logger) {
	stats := c.Dispatcher.Stats()
	logger.Info("outbox dispatcher stats",
		"running", stats.IsRunning,
		"runs", stats.Runs,
		"published", stats.PublishedCount,
		"failed", stats.FailedCount,
		"exhausted", stats.ExhaustedCount,
		"lag_seconds", stats.LagSeconds,
		"oldest_message_at", stats.OldestMessageAt,
		"last_run_at", stats.LastRunAt,
		"last_error_at", stats.LastErrorAt,
		"last_error", stats.LastError,
	)

	table, err := c.OutboxRepo.Statistics(ctx)
	if err != nil {
		logger.Warn("failed to read outbox statistics", "error", err)
		return
	}
	logger.Info("outbox table stats",
		"total", table.Total,
		"pending", table.Pending,
		"retrying", table.Retrying,
		"exhausted", table.Exhausted,
		"published", table.Published,
		"avg_retry_count", table.AvgRetryCount,
		"oldest_pending", table.OldestPending,
	)
	if table.Exhausted == 0 {
		return
	}

	exhausted, err := c.OutboxRepo.ListExhausted(ctx, 10)
	if err != nil {
		logger.Warn("failed to list exhausted events", "error", err)
		return
	}
	for _, m := range exhausted {
		logger.Warn("outbox event needs attention",
			"id", m.ID,
			"event_id", m.EventID,
			"event_type", m.EventType,
			"aggregate_id", m.AggregateID,
			"retry_count", m.RetryCount,
			"last_error", m.LastError,
		)
	}
}
