package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/reservo/pkg/clock"
)

var epoch = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newSQLStore(t *testing.T, conn database.Connection) (*lock.SQLStore, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(epoch)
	store, err := lock.NewSQLStore(conn, clk)
	require.NoError(t, err)
	return store, clk
}

func TestSQLStore_SQLite(t *testing.T) {
	runSQLStoreSuite(t, func(t *testing.T) database.Connection { return dbtest.SQLite(t) })
}

func TestSQLStore_Postgres(t *testing.T) {
	runSQLStoreSuite(t, func(t *testing.T) database.Connection { return dbtest.Postgres(t) })
}

func runSQLStoreSuite(t *testing.T, open func(t *testing.T) database.Connection) {
	ctx := context.Background()

	t.Run("acquire is exclusive", func(t *testing.T) {
		store, _ := newSQLStore(t, open(t))

		ok, err := store.TryAcquire(ctx, "excl", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.TryAcquire(ctx, "excl", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		held, err := store.FindActive(ctx, "excl")
		require.NoError(t, err)
		assert.Equal(t, "a", held.Owner)
		assert.Equal(t, epoch, held.LockedAt)
		assert.Equal(t, epoch.Add(time.Minute), held.ExpiresAt)
	})

	t.Run("expired lock is reclaimable", func(t *testing.T) {
		store, clk := newSQLStore(t, open(t))

		ok, err := store.TryAcquire(ctx, "stale", "crashed", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		clk.Add(2 * time.Second)

		_, err = store.FindActive(ctx, "stale")
		assert.True(t, errors.Is(err, lock.ErrLockNotFound))

		ok, err = store.TryAcquire(ctx, "stale", "fresh", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release checks owner", func(t *testing.T) {
		store, _ := newSQLStore(t, open(t))

		_, err := store.TryAcquire(ctx, "rel", "a", time.Minute)
		require.NoError(t, err)

		released, err := store.Release(ctx, "rel", "b")
		require.NoError(t, err)
		assert.False(t, released)

		released, err = store.Release(ctx, "rel", "a")
		require.NoError(t, err)
		assert.True(t, released)

		released, err = store.Release(ctx, "rel", "a")
		require.NoError(t, err)
		assert.False(t, released)
	})

	t.Run("extend only while owned and live", func(t *testing.T) {
		store, clk := newSQLStore(t, open(t))

		_, err := store.TryAcquire(ctx, "ext", "a", time.Second)
		require.NoError(t, err)

		extended, err := store.Extend(ctx, "ext", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, extended)

		extended, err = store.Extend(ctx, "ext", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, extended)

		clk.Add(2 * time.Minute)
		extended, err = store.Extend(ctx, "ext", "a", time.Minute)
		require.NoError(t, err)
		assert.False(t, extended)
	})

	t.Run("cleanup removes only expired rows", func(t *testing.T) {
		store, clk := newSQLStore(t, open(t))

		_, err := store.TryAcquire(ctx, "short", "a", time.Second)
		require.NoError(t, err)
		_, err = store.TryAcquire(ctx, "long", "a", time.Hour)
		require.NoError(t, err)

		clk.Add(time.Minute)
		n, err := store.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = store.FindActive(ctx, "long")
		assert.NoError(t, err)
	})
}
