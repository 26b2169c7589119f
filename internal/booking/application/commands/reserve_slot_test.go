package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

var errOutboxDown = errors.New("outbox unavailable")

func TestReserveSlot_CreatesBookingAndEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cmd := reserveCommand(uuid.New())

	res, err := f.reserve.Handle(ctx, cmd)

	require.NoError(t, err)
	assert.False(t, res.Replayed)
	b := res.Booking
	assert.Equal(t, domain.StatusCreated, b.Status())
	assert.Equal(t, int64(0), b.Version())
	assert.Equal(t, cmd.SlotID, b.SlotID())
	assert.Equal(t, "1500.00 RUB", b.Price().String())

	stored, err := f.bookings.FindByID(ctx, b.ID())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), stored.ID())

	msgs, err := f.outbox.ListByAggregate(ctx, b.ID())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.EventTypeCreated, msgs[0].EventType)
	assert.Nil(t, msgs[0].PublishedAt)
	assert.Zero(t, msgs[0].RetryCount)
	assert.Equal(t, cmd.ClientUserID, msgs[0].UserID)
	assert.NotEqual(t, uuid.Nil, msgs[0].CorrelationID)

	_, err = f.locks.FindActive(ctx, domain.SlotLockKey(cmd.SlotID))
	assert.ErrorIs(t, err, lock.ErrLockNotFound, "slot lock released")
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricBookingsReserved))
}

func TestReserveSlot_SlotAlreadyBooked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slotID := uuid.New()
	first, err := f.reserve.Handle(ctx, reserveCommand(slotID))
	require.NoError(t, err)

	_, err = f.reserve.Handle(ctx, reserveCommand(slotID))

	var booked *domain.SlotAlreadyBookedError
	require.True(t, errors.As(err, &booked), "got %v", err)
	assert.Equal(t, slotID, booked.SlotID)
	assert.Equal(t, first.Booking.ID(), booked.ExistingBookingID)
	assert.Equal(t, domain.KindSlotAlreadyBooked, domain.KindOf(err))

	_, err = f.locks.FindActive(ctx, domain.SlotLockKey(slotID))
	assert.ErrorIs(t, err, lock.ErrLockNotFound, "lock released after a failure too")
}

func TestReserveSlot_CancelledSlotCanBeReserved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	slotID := uuid.New()
	first, err := f.reserve.Handle(ctx, reserveCommand(slotID))
	require.NoError(t, err)

	_, err = f.transitions.Cancel(ctx, commands.CancelCommand{
		TransitionCommand: commands.TransitionCommand{BookingID: first.Booking.ID(), ExpectedVersion: 0},
		Reason:            "changed plans",
	})
	require.NoError(t, err)

	second, err := f.reserve.Handle(ctx, reserveCommand(slotID))
	require.NoError(t, err)
	assert.NotEqual(t, first.Booking.ID(), second.Booking.ID())
}

func TestReserveSlot_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cmd := reserveCommand(uuid.New())
	cmd.IdempotencyKey = "tg-update-42"

	first, err := f.reserve.Handle(ctx, cmd)
	require.NoError(t, err)

	// a retried request, even for another slot, gets the original booking back
	retry := reserveCommand(uuid.New())
	retry.IdempotencyKey = "tg-update-42"
	second, err := f.reserve.Handle(ctx, retry)

	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID(), second.Booking.ID())
	assert.Equal(t, []string{domain.EventTypeCreated}, f.eventTypes(t, first.Booking.ID()))
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricBookingsReplayed))
}

func TestReserveSlot_IdempotencyKeyConflictOnInsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withStaleIdempotencyLookup())
	cmd := reserveCommand(uuid.New())
	cmd.IdempotencyKey = "tg-update-77"

	first, err := f.reserve.Handle(ctx, cmd)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	// the lookup misses, so the key only collides at insert time
	retry := reserveCommand(uuid.New())
	retry.IdempotencyKey = "tg-update-77"
	second, err := f.reserve.Handle(ctx, retry)

	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID(), second.Booking.ID())
	assert.Equal(t, cmd.SlotID, second.Booking.SlotID())

	_, err = f.bookings.FindActiveBySlot(ctx, retry.SlotID)
	assert.True(t, errors.Is(err, domain.ErrBookingNotFound))

	stats, err := f.outbox.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricBookingsReplayed))
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricBookingsReserved))
}

func TestReserveSlot_PastBooking(t *testing.T) {
	f := newFixture(t)
	cmd := reserveCommand(uuid.New())
	cmd.ScheduledAt = now.Add(-time.Minute)

	_, err := f.reserve.Handle(context.Background(), cmd)

	var past *domain.PastBookingError
	require.True(t, errors.As(err, &past), "got %v", err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, domain.CodePastBooking, domain.CodeOf(err))
}

func TestReserveSlot_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cmd *commands.ReserveSlotCommand)
		field  string
	}{
		{"missing slot", func(cmd *commands.ReserveSlotCommand) { cmd.SlotID = uuid.Nil }, "slot_id"},
		{"missing account", func(cmd *commands.ReserveSlotCommand) { cmd.AccountID = uuid.Nil }, "account_id"},
		{"price not a number", func(cmd *commands.ReserveSlotCommand) { cmd.Price = "abc" }, "price"},
		{"negative price", func(cmd *commands.ReserveSlotCommand) { cmd.Price = "-5" }, "price"},
		{"bad currency", func(cmd *commands.ReserveSlotCommand) { cmd.Currency = "RUBX" }, "currency"},
		{"unknown source", func(cmd *commands.ReserveSlotCommand) { cmd.Source = "fax" }, "source"},
		{"negative duration", func(cmd *commands.ReserveSlotCommand) { cmd.DurationMinutes = -1 }, "duration_minutes"},
		{"missing time", func(cmd *commands.ReserveSlotCommand) { cmd.ScheduledAt = time.Time{} }, "scheduled_at"},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := reserveCommand(uuid.New())
			tt.modify(&cmd)

			_, err := f.reserve.Handle(context.Background(), cmd)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.False(t, domain.IsTransient(err))
		})
	}
}

func TestReserveSlot_LockTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withLockWait(50*time.Millisecond))
	cmd := reserveCommand(uuid.New())
	key := domain.SlotLockKey(cmd.SlotID)

	held, err := f.locks.TryAcquire(ctx, key, "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = f.reserve.Handle(ctx, cmd)

	var lockErr *domain.LockAcquisitionError
	require.True(t, errors.As(err, &lockErr), "got %v", err)
	assert.Equal(t, key, lockErr.Key)
	assert.GreaterOrEqual(t, lockErr.WaitedMs(), int64(50))
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricLockTimeouts))

	exists, err := f.bookings.ExistsActiveForSlot(ctx, cmd.SlotID)
	require.NoError(t, err)
	assert.False(t, exists)

	active, err := f.locks.FindActive(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "other-instance", active.Owner, "foreign lock untouched")
}

func TestReserveSlot_OutboxFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withFailingOutbox())
	cmd := reserveCommand(uuid.New())

	_, err := f.reserve.Handle(ctx, cmd)

	require.ErrorIs(t, err, errOutboxDown)
	exists, err := f.bookings.ExistsActiveForSlot(ctx, cmd.SlotID)
	require.NoError(t, err)
	assert.False(t, exists, "booking rolled back with its event")
}

func TestReserveSlot_ConcurrentRequestsForOneSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, withLocker(lock.NewRedisStore(client)), withLockWait(5*time.Second))
	slotID := uuid.New()

	const requests = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    []uuid.UUID
		booked int
		other  []error
	)
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.reserve.Handle(context.Background(), reserveCommand(slotID))

			mu.Lock()
			defer mu.Unlock()
			var slotErr *domain.SlotAlreadyBookedError
			switch {
			case err == nil:
				won = append(won, res.Booking.ID())
			case errors.As(err, &slotErr):
				booked++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	require.Len(t, won, 1)
	assert.Equal(t, requests-1, booked)

	active, err := f.bookings.FindActiveBySlot(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, won[0], active.ID())
	assert.False(t, mr.Exists(domain.SlotLockKey(slotID)))
}
