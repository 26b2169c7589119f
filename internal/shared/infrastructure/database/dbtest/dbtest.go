// Package dbtest opens migrated databases for repository tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/postgres"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/migrations"
)

// SQLite returns an in-memory SQLite database with every migration applied.
// It is closed when the test ends.
func SQLite(t testing.TB) database.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewMemoryConnection(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, migrations.Run(ctx, conn))
	return conn
}

// Postgres connects to TEST_DATABASE_URL, applies migrations and empties the
// tables. The test is skipped when the variable is unset.
func Postgres(t testing.TB) database.Connection {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	conn, err := postgres.NewConnection(ctx, database.Config{Driver: database.DriverPostgres, URL: url, MaxConns: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, migrations.Run(ctx, conn))
	_, err = conn.Exec(ctx, `TRUNCATE visit_history, bookings, outbox_events, distributed_locks RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return conn
}
