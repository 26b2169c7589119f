package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("text output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf, ServiceName: "reservo"})

		logger.Info("slot reserved", "slot_id", "s-1")

		assert.Contains(t, buf.String(), "slot reserved")
		assert.Contains(t, buf.String(), "slot_id=s-1")
		assert.Contains(t, buf.String(), "service=reservo")
	})

	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatJSON, Output: &buf})

		logger.Info("slot reserved", "slot_id", "s-1")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "slot reserved", entry["msg"])
		assert.Equal(t, "s-1", entry["slot_id"])
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestLogConfigFor(t *testing.T) {
	cfg := LogConfigFor("reservo-worker", "DEBUG", "json", "development")
	assert.Equal(t, LogLevelDebug, cfg.Level)
	assert.Equal(t, LogFormatJSON, cfg.Format)
	assert.False(t, cfg.AddSource)

	cfg = LogConfigFor("reservo-worker", "", "text", "production")
	assert.Equal(t, LogFormatJSON, cfg.Format)
	assert.True(t, cfg.AddSource)
}

func TestAttributeHandler_AddsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx = WithRequestID(ctx, "req-1")
	logger.InfoContext(ctx, "hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corr-1", entry[CorrelationIDKey])
	assert.Equal(t, "req-1", entry[RequestIDKey])
}

func TestParseSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseSlogLevel(LogLevelDebug))
	assert.Equal(t, slog.LevelWarn, parseSlogLevel(LogLevelWarn))
	assert.Equal(t, slog.LevelError, parseSlogLevel(LogLevelError))
	assert.Equal(t, slog.LevelInfo, parseSlogLevel("verbose"))
}

func TestContextIDs(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.NotEmpty(t, CorrelationIDFromContext(ctx))
	assert.NotEqual(t, "", CorrelationUUID(ctx).String())

	assert.Empty(t, CorrelationIDFromContext(context.Background()))
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", CorrelationUUID(WithCorrelationID(context.Background(), "not-a-uuid")).String())
}

func TestLoggerOrDefault(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerOrDefault(nil))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, LoggerOrDefault(l))
}
