package commands_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

func TestRetryOnConflict(t *testing.T) {
	conflict := errors.Wrap(domain.ErrOptimisticConflict, "booking moved on")

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := commands.RetryOnConflict(context.Background(), 3, func(context.Context) error {
			calls++
			if calls < 3 {
				return conflict
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up with the conflict", func(t *testing.T) {
		calls := 0
		err := commands.RetryOnConflict(context.Background(), 2, func(context.Context) error {
			calls++
			return conflict
		})

		assert.ErrorIs(t, err, domain.ErrOptimisticConflict)
		assert.Equal(t, 2, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := commands.RetryOnConflict(context.Background(), 5, func(context.Context) error {
			calls++
			return domain.ErrBookingNotFound
		})

		assert.ErrorIs(t, err, domain.ErrBookingNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("runs at least once", func(t *testing.T) {
		calls := 0
		err := commands.RetryOnConflict(context.Background(), 0, func(context.Context) error {
			calls++
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := commands.RetryOnConflict(ctx, 5, func(context.Context) error {
			calls++
			cancel()
			return conflict
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
