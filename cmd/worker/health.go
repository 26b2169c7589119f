package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/felixgeelhaar/reservo/internal/app"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// newHealthHandler serves /healthz with dispatcher stats and /readyz with the
// dependency checks. Only an unhealthy dependency fails readiness; a degraded
// Redis tier does not.
func newHealthHandler(c *app.Container) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := c.Dispatcher.Stats()
		health := check(r.Context(), c)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            health.Status,
			"running":           stats.IsRunning,
			"runs":              stats.Runs,
			"published":         stats.PublishedCount,
			"failed":            stats.FailedCount,
			"exhausted":         stats.ExhaustedCount,
			"lag_seconds":       stats.LagSeconds,
			"last_run_at":       stats.LastRunAt,
			"last_error_at":     stats.LastErrorAt,
			"last_error":        stats.LastError,
			"oldest_message_at": stats.OldestMessageAt,
			"checks":            health.Checks,
		})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		health := check(r.Context(), c)
		status := http.StatusOK
		if health.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})

	return mux
}

func check(ctx context.Context, c *app.Container) observability.OverallHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.Health.Check(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
