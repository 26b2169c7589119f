package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists bookings. Every method runs in the transaction carried by
// ctx when there is one.
type Repository interface {
	// InsertIfAbsent stores b unless another booking already holds its
	// idempotency key. In that case the stored booking is returned with
	// inserted=false and nothing is written.
	InsertIfAbsent(ctx context.Context, b *Booking) (stored *Booking, inserted bool, err error)

	// UpdateWithVersion writes b only if the stored version still equals
	// expectedVersion, setting it to expectedVersion+1. It returns
	// ErrOptimisticConflict when nothing matched.
	UpdateWithVersion(ctx context.Context, b *Booking, expectedVersion int64) error

	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Booking, error)

	// FindActiveBySlot returns the created or confirmed booking holding slotID,
	// or ErrBookingNotFound.
	FindActiveBySlot(ctx context.Context, slotID uuid.UUID) (*Booking, error)
	ExistsActiveForSlot(ctx context.Context, slotID uuid.UUID) (bool, error)
}

// VisitHistoryRepository persists visits.
type VisitHistoryRepository interface {
	Save(ctx context.Context, v *VisitHistory) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*VisitHistory, error)
}
