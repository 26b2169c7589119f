package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// The value of a lock key is its owner token, so release and extend compare it
// before touching the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisStore is the primary lock tier.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// TryAcquire sets key to owner if it is absent.
func (s *RedisStore) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis setnx %s", key)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{key}, owner).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "redis release %s", key)
	}
	return n == 1, nil
}

func (s *RedisStore) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, s.client, []string{key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "redis extend %s", key)
	}
	return n == 1, nil
}

// Ping checks the connection for health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
