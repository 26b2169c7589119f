package commands

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

// RetryOnConflict runs fn up to attempts times while it fails with
// domain.ErrOptimisticConflict. fn must reload the booking and re-check its
// preconditions on every call. Any other error is returned at once.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for range attempts {
		err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrOptimisticConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
