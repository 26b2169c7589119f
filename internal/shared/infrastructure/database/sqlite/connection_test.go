package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/sqlite"
)

func TestNewConnection_File(t *testing.T) {
	ctx := context.Background()

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "reservo.db"),
	})
	require.NoError(t, err)
	defer conn.Close()

	assert.NoError(t, conn.Ping(ctx))
	assert.Equal(t, database.DriverSQLite, conn.Driver())
}

func TestNewConnection_PathWithQuery(t *testing.T) {
	ctx := context.Background()

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: "sqlite://" + filepath.Join(t.TempDir(), "reservo.db") + "?_pragma=cache_size(2000)",
	})
	require.NoError(t, err)
	defer conn.Close()

	assert.NoError(t, conn.Ping(ctx))
}

func TestNewConnection_RejectsShellCharacters(t *testing.T) {
	_, err := database.NewConnection(context.Background(), database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "db;rm.db"),
	})

	assert.ErrorContains(t, err, "invalid SQLITE_PATH")
}

func TestConnection_ExecAndQuery(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.NewMemoryConnection(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, `CREATE TABLE slots (id TEXT PRIMARY KEY, label TEXT)`)
	require.NoError(t, err)

	res, err := conn.Exec(ctx, `INSERT INTO slots (id, label) VALUES (?, ?)`, "s1", "morning")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = conn.Exec(ctx, `INSERT INTO slots (id, label) VALUES (?, ?)`, "s2", "evening")
	require.NoError(t, err)

	rows, err := conn.Query(ctx, `SELECT label FROM slots ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		require.NoError(t, rows.Scan(&label))
		labels = append(labels, label)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"morning", "evening"}, labels)
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.NewMemoryConnection(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, `CREATE TABLE slots (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	uow := database.NewUnitOfWork(conn)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	_, err = database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO slots (id) VALUES (?)`, "kept")
	require.NoError(t, err)
	require.NoError(t, uow.Commit(txCtx))

	txCtx, err = uow.Begin(ctx)
	require.NoError(t, err)
	_, err = database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO slots (id) VALUES (?)`, "dropped")
	require.NoError(t, err)
	require.NoError(t, uow.Rollback(txCtx))

	var count int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM slots`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUnitOfWork_NestedBeginDoesNotOwn(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.NewMemoryConnection(ctx)
	require.NoError(t, err)
	defer conn.Close()

	uow := database.NewUnitOfWork(conn)

	outer, err := uow.Begin(ctx)
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	info, ok := database.TxInfoFromContext(inner)
	require.True(t, ok)
	assert.False(t, info.Owned)

	// inner commit is a no-op, the outer transaction stays usable
	require.NoError(t, uow.Commit(inner))
	require.NoError(t, uow.Rollback(outer))
}

func TestUnitOfWork_CommitWithoutBegin(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.NewMemoryConnection(ctx)
	require.NoError(t, err)
	defer conn.Close()

	err = database.NewUnitOfWork(conn).Commit(ctx)
	assert.ErrorIs(t, err, database.ErrNoTransaction)
}

func TestConnection_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.NewMemoryConnection(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, `CREATE TABLE keys (k TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO keys (k) VALUES (?)`, "a")
	require.NoError(t, err)

	_, err = conn.Exec(ctx, `INSERT INTO keys (k) VALUES (?)`, "a")
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}
