package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
)

func newRedisStore(t *testing.T) (*lock.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewRedisStore(client), mr
}

func TestRedisStore_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	ok, err := store.TryAcquire(ctx, "booking:slot:1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := mr.Get("booking:slot:1")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", got)

	ok, err = store.TryAcquire(ctx, "booking:slot:1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := store.Release(ctx, "booking:slot:1", "owner-b")
	require.NoError(t, err)
	assert.False(t, released, "foreign owner must not release")

	released, err = store.Release(ctx, "booking:slot:1", "owner-a")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("booking:slot:1"))

	released, err = store.Release(ctx, "booking:slot:1", "owner-a")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	ok, err := store.TryAcquire(ctx, "k", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = store.TryAcquire(ctx, "k", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Extend(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	_, err := store.TryAcquire(ctx, "k", "a", time.Second)
	require.NoError(t, err)

	extended, err := store.Extend(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)

	extended, err = store.Extend(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	assert.NoError(t, store.Ping(ctx))
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.TryAcquire(ctx, "k", "a", time.Second)
	assert.Error(t, err)
}
