package commands_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	"github.com/felixgeelhaar/reservo/internal/booking/infrastructure/persistence"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reservo/pkg/clock"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	conn        database.Connection
	bookings    *persistence.BookingRepository
	reserveRepo domain.Repository
	visits      *persistence.VisitHistoryRepository
	outbox      outbox.Repository
	uow         *database.UnitOfWork
	clock       *clock.MockClock
	locks       *lock.SQLStore
	metrics     *observability.InMemoryMetrics
	reserve     *commands.ReserveSlotHandler
	transitions *commands.TransitionHandler
	reviews     *commands.AddReviewHandler
}

type fixtureOption func(f *fixture, cfg *commands.ReserveConfig, locker *lock.Locker)

func withLocker(l lock.Locker) fixtureOption {
	return func(_ *fixture, _ *commands.ReserveConfig, locker *lock.Locker) { *locker = l }
}

func withLockWait(wait time.Duration) fixtureOption {
	return func(_ *fixture, cfg *commands.ReserveConfig, _ *lock.Locker) { cfg.LockWait = wait }
}

func withFailingOutbox() fixtureOption {
	return func(f *fixture, _ *commands.ReserveConfig, _ *lock.Locker) {
		f.outbox = failingOutbox{Repository: f.outbox}
	}
}

// withStaleIdempotencyLookup hides existing idempotency keys from the
// pre-lock lookup, as when a concurrent request commits right after it.
func withStaleIdempotencyLookup() fixtureOption {
	return func(f *fixture, _ *commands.ReserveConfig, _ *lock.Locker) {
		f.reserveRepo = staleIdempotencyLookup{Repository: f.bookings}
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	conn := dbtest.SQLite(t)

	bookings, err := persistence.NewBookingRepository(conn)
	require.NoError(t, err)
	visits, err := persistence.NewVisitHistoryRepository(conn)
	require.NoError(t, err)
	outboxRepo, err := outbox.NewRepository(conn)
	require.NoError(t, err)
	clk := clock.NewMockClock(now)
	locks, err := lock.NewSQLStore(conn, clk)
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		bookings: bookings,
		visits:   visits,

		reserveRepo: bookings,
		outbox:   outboxRepo,
		uow:      database.NewUnitOfWork(conn),
		clock:    clk,
		locks:    locks,
		metrics:  observability.NewInMemoryMetrics(),
	}

	cfg := commands.DefaultReserveConfig()
	cfg.LockWait = time.Second
	cfg.LockRetryInterval = 5 * time.Millisecond
	var locker lock.Locker = locks
	for _, opt := range opts {
		opt(f, &cfg, &locker)
	}

	f.reserve = commands.NewReserveSlotHandler(f.reserveRepo, f.outbox, f.uow, locker, clk, cfg, f.metrics, nil)
	f.transitions = commands.NewTransitionHandler(f.bookings, f.visits, f.outbox, f.uow, clk, outbox.DefaultMaxRetries, f.metrics, nil)
	f.reviews = commands.NewAddReviewHandler(f.visits, f.outbox, f.uow, clk, outbox.DefaultMaxRetries)
	return f
}

func reserveCommand(slotID uuid.UUID) commands.ReserveSlotCommand {
	return commands.ReserveSlotCommand{
		AccountID:       uuid.New(),
		SlotID:          slotID,
		ClientUserID:    uuid.New(),
		ServiceID:       uuid.New(),
		Price:           "1500",
		Currency:        "RUB",
		ScheduledAt:     now.Add(24 * time.Hour),
		DurationMinutes: 60,
		Source:          "telegram",
		ClientName:      "Anna",
	}
}

func (f *fixture) reserveBooking(t *testing.T) *domain.Booking {
	t.Helper()
	res, err := f.reserve.Handle(context.Background(), reserveCommand(uuid.New()))
	require.NoError(t, err)
	return res.Booking
}

func (f *fixture) eventTypes(t *testing.T, bookingID uuid.UUID) []string {
	t.Helper()
	msgs, err := f.outbox.ListByAggregate(context.Background(), bookingID)
	require.NoError(t, err)
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i] = m.EventType
	}
	return types
}

// failingOutbox refuses every append.
type failingOutbox struct {
	outbox.Repository
}

func (failingOutbox) SaveBatch(context.Context, []*outbox.Message) error {
	return errOutboxDown
}

type staleIdempotencyLookup struct {
	domain.Repository
}

func (staleIdempotencyLookup) FindByIdempotencyKey(context.Context, string) (*domain.Booking, error) {
	return nil, domain.ErrBookingNotFound
}
