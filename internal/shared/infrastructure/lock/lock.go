// Package lock provides keyed mutual exclusion with a TTL, shared between
// service instances. It is not a fair queue: waiters poll and whoever asks
// first after a release wins.
package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// DefaultRetryInterval is the pause between attempts in Acquire.
const DefaultRetryInterval = 50 * time.Millisecond

var (
	// ErrWaitTimeout is returned by Acquire when the wait budget ran out.
	ErrWaitTimeout = errors.New("lock wait timed out")
	// ErrLockNotFound is returned by FindActive when no live lock exists.
	ErrLockNotFound = errors.New("lock not found")
)

// Locker is a mutual-exclusion primitive over string keys. Ownership is always
// checked by owner token: releasing or extending someone else's lock is a no-op
// returning false, not an error.
type Locker interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
	Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}

// Lock is a live fallback-tier lock row.
type Lock struct {
	Key       string
	Owner     string
	LockedAt  time.Time
	ExpiresAt time.Time
}

// NewOwner returns a fresh owner token.
func NewOwner() string {
	return uuid.NewString()
}

// Acquire calls TryAcquire until it succeeds, wait has elapsed or ctx ends.
// It returns how long it waited. Errors from the locker are retried; if the
// budget runs out after one, it is attached to ErrWaitTimeout.
func Acquire(ctx context.Context, l Locker, key, owner string, ttl, wait, interval time.Duration) (time.Duration, error) {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	start := time.Now()
	deadline := start.Add(wait)

	var lastErr error
	for {
		ok, err := l.TryAcquire(ctx, key, owner, ttl)
		if err == nil && ok {
			return time.Since(start), nil
		}
		if err != nil {
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			timeout := errors.Wrapf(ErrWaitTimeout, "key %s", key)
			if lastErr != nil {
				timeout = errors.WithSecondaryError(timeout, lastErr)
			}
			return time.Since(start), timeout
		}

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}
}
