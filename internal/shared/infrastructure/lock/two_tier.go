package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// FallbackStore is the durable tier. Besides locking it can sweep expired rows
// and report who holds a key.
type FallbackStore interface {
	Locker
	CleanupExpired(ctx context.Context) (int64, error)
	FindActive(ctx context.Context, key string) (*Lock, error)
}

// TwoTierConfig configures TwoTierStore.
type TwoTierConfig struct {
	// BreakerFailures is the number of consecutive primary errors that open
	// the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing the
	// primary again.
	BreakerTimeout time.Duration
	// CheckFallbackOnPrimary makes a primary acquire also verify that no live
	// fallback row exists for the key. Locks taken while the primary was down
	// live only in the fallback table.
	CheckFallbackOnPrimary bool
}

// DefaultTwoTierConfig returns the production defaults.
func DefaultTwoTierConfig() TwoTierConfig {
	return TwoTierConfig{
		BreakerFailures:        3,
		BreakerTimeout:         30 * time.Second,
		CheckFallbackOnPrimary: true,
	}
}

// TwoTierStore tries the primary (cache) tier first and uses the fallback
// (table) tier whenever the primary errors or its breaker is open. A nil
// primary runs on the fallback alone.
type TwoTierStore struct {
	primary  Locker
	fallback FallbackStore
	breaker  *gobreaker.CircuitBreaker[bool]
	config   TwoTierConfig
	metrics  observability.Metrics
	logger   *slog.Logger
}

// NewTwoTierStore creates a two-tier store.
func NewTwoTierStore(primary Locker, fallback FallbackStore, config TwoTierConfig, metrics observability.Metrics, logger *slog.Logger) *TwoTierStore {
	logger = observability.LoggerOrDefault(logger)
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 3
	}

	s := &TwoTierStore{
		primary:  primary,
		fallback: fallback,
		config:   config,
		metrics:  observability.MetricsOrNoop(metrics),
		logger:   logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        "lock-primary",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("lock breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// TryAcquire takes the lock on the primary tier, or on the fallback tier when
// the primary is unavailable.
func (s *TwoTierStore) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.onPrimary(func() (bool, error) {
		return s.primary.TryAcquire(ctx, key, owner, ttl)
	})
	if err != nil {
		s.useFallback("acquire", key, err)
		return s.fallback.TryAcquire(ctx, key, owner, ttl)
	}
	if !ok || !s.config.CheckFallbackOnPrimary {
		return ok, nil
	}

	held, err := s.fallback.FindActive(ctx, key)
	switch {
	case errors.Is(err, ErrLockNotFound):
		return true, nil
	case err != nil:
		s.releasePrimary(ctx, key, owner)
		return false, errors.Wrapf(err, "check fallback lock %s", key)
	case held.Owner == owner:
		return true, nil
	default:
		s.releasePrimary(ctx, key, owner)
		return false, nil
	}
}

// Release drops the lock on whichever tier holds it for owner.
func (s *TwoTierStore) Release(ctx context.Context, key, owner string) (bool, error) {
	released, err := s.onPrimary(func() (bool, error) {
		return s.primary.Release(ctx, key, owner)
	})
	if err != nil {
		s.useFallback("release", key, err)
	}
	if released {
		return true, nil
	}
	return s.fallback.Release(ctx, key, owner)
}

// Extend pushes back the expiry on whichever tier holds the lock for owner.
func (s *TwoTierStore) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	extended, err := s.onPrimary(func() (bool, error) {
		return s.primary.Extend(ctx, key, owner, ttl)
	})
	if err != nil {
		s.useFallback("extend", key, err)
	}
	if extended {
		return true, nil
	}
	return s.fallback.Extend(ctx, key, owner, ttl)
}

// CleanupExpired sweeps the fallback table. The primary tier expires keys on
// its own.
func (s *TwoTierStore) CleanupExpired(ctx context.Context) (int64, error) {
	return s.fallback.CleanupExpired(ctx)
}

// FindActive reports the fallback-tier holder of key.
func (s *TwoTierStore) FindActive(ctx context.Context, key string) (*Lock, error) {
	return s.fallback.FindActive(ctx, key)
}

// BreakerState reports the primary tier's breaker state.
func (s *TwoTierStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}

func (s *TwoTierStore) onPrimary(fn func() (bool, error)) (bool, error) {
	if s.primary == nil {
		return false, errPrimaryDisabled
	}
	return s.breaker.Execute(fn)
}

var errPrimaryDisabled = errors.New("primary lock tier not configured")

func (s *TwoTierStore) useFallback(op, key string, cause error) {
	if errors.Is(cause, errPrimaryDisabled) {
		return
	}
	s.metrics.Counter(observability.MetricLockFallback, 1, observability.T("op", op))
	s.logger.Warn("lock primary tier unavailable, using fallback", "op", op, "key", key, "error", cause)
}

func (s *TwoTierStore) releasePrimary(ctx context.Context, key, owner string) {
	if _, err := s.primary.Release(ctx, key, owner); err != nil {
		s.logger.Warn("failed to release primary lock", "key", key, "error", err)
	}
}
