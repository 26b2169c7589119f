package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/app"
	"github.com/felixgeelhaar/reservo/pkg/config"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	cfg := &config.Config{
		AppEnv:             "test",
		InstanceID:         "worker-test",
		DatabaseDriver:     "sqlite",
		SQLitePath:         filepath.Join(t.TempDir(), "reservo.db"),
		AutoMigrate:        true,
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    10,
		OutboxWorkers:      1,
		OutboxMaxRetries:   5,
		OutboxClaimLease:   30 * time.Second,
		EventBusDriver:     "noop",
	}
	c, err := app.NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthz(t *testing.T) {
	c := newTestContainer(t)
	_, err := c.Dispatcher.RunOnce(context.Background())
	require.NoError(t, err)

	rec, body := get(t, newHealthHandler(c), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, string(observability.HealthStatusHealthy), body["status"])
	assert.Equal(t, false, body["running"])
	assert.EqualValues(t, 1, body["runs"])
	assert.Contains(t, body["checks"], "database")
}

func TestReadyz(t *testing.T) {
	c := newTestContainer(t)
	h := newHealthHandler(c)

	rec, body := get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	require.NoError(t, c.DB.Close())
	rec, body = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestReadyz_DegradedStaysReady(t *testing.T) {
	c := newTestContainer(t)
	c.Health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded, func(context.Context) error {
		return context.DeadlineExceeded
	}))

	rec, body := get(t, newHealthHandler(c), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}
