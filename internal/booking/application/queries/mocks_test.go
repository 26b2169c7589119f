package queries

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) InsertIfAbsent(ctx context.Context, b *domain.Booking) (*domain.Booking, bool, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Booking), args.Bool(1), args.Error(2)
}

func (m *mockBookingRepo) UpdateWithVersion(ctx context.Context, b *domain.Booking, expectedVersion int64) error {
	return m.Called(ctx, b, expectedVersion).Error(0)
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *mockBookingRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *mockBookingRepo) FindActiveBySlot(ctx context.Context, slotID uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *mockBookingRepo) ExistsActiveForSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	args := m.Called(ctx, slotID)
	return args.Bool(0), args.Error(1)
}

type mockVisitRepo struct {
	mock.Mock
}

func (m *mockVisitRepo) Save(ctx context.Context, v *domain.VisitHistory) error {
	return m.Called(ctx, v).Error(0)
}

func (m *mockVisitRepo) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.VisitHistory, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VisitHistory), args.Error(1)
}
