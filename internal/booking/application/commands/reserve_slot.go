package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/reservo/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reservo/pkg/clock"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

var tracer = observability.Tracer("github.com/felixgeelhaar/reservo/internal/booking/application/commands")

// ReserveSlotCommand asks for a new booking of a slot.
type ReserveSlotCommand struct {
	AccountID       uuid.UUID         `json:"account_id" validate:"required"`
	SlotID          uuid.UUID         `json:"slot_id" validate:"required"`
	ClientUserID    uuid.UUID         `json:"client_user_id" validate:"required"`
	ServiceID       uuid.UUID         `json:"service_id" validate:"required"`
	Price           string            `json:"price" validate:"required,numeric"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	ScheduledAt     time.Time         `json:"scheduled_at" validate:"required"`
	DurationMinutes int               `json:"duration_minutes" validate:"min=0,max=1440"`
	Source          string            `json:"source" validate:"omitempty,oneof=telegram web api admin import"`
	ClientName      string            `json:"client_name" validate:"max=255"`
	ClientPhone     string            `json:"client_phone" validate:"max=32"`
	ServiceName     string            `json:"service_name" validate:"max=255"`
	Notes           string            `json:"notes" validate:"max=2000"`
	IdempotencyKey  string            `json:"idempotency_key" validate:"max=255"`
	Metadata        map[string]string `json:"metadata"`
}

// ReserveSlotResult is the booking holding the slot. Replayed is true when an
// earlier request with the same idempotency key created it.
type ReserveSlotResult struct {
	Booking  *domain.Booking
	Replayed bool
}

// ReserveConfig tunes the slot lock and the outbox rows written on reserve.
type ReserveConfig struct {
	LockTTL           time.Duration
	LockWait          time.Duration
	LockRetryInterval time.Duration
	OutboxMaxRetries  int
}

// DefaultReserveConfig returns the defaults used by the binaries.
func DefaultReserveConfig() ReserveConfig {
	return ReserveConfig{
		LockTTL:           30 * time.Second,
		LockWait:          5 * time.Second,
		LockRetryInterval: lock.DefaultRetryInterval,
		OutboxMaxRetries:  outbox.DefaultMaxRetries,
	}
}

// ReserveSlotHandler makes "reserve slot X" atomic across instances: lock the
// slot, check nothing active holds it, insert the booking with its
// booking.created event, release the lock.
type ReserveSlotHandler struct {
	repo       domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	locker     lock.Locker
	clock      clock.Clock
	config     ReserveConfig
	metrics    observability.Metrics
	logger     *slog.Logger
}

// NewReserveSlotHandler creates a new ReserveSlotHandler.
func NewReserveSlotHandler(
	repo domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	locker lock.Locker,
	clk clock.Clock,
	config ReserveConfig,
	metrics observability.Metrics,
	logger *slog.Logger,
) *ReserveSlotHandler {
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultReserveConfig().LockTTL
	}
	return &ReserveSlotHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		locker:     locker,
		clock:      clk,
		config:     config,
		metrics:    observability.MetricsOrNoop(metrics),
		logger:     observability.LoggerOrDefault(logger),
	}
}

// Handle executes the ReserveSlotCommand.
func (h *ReserveSlotHandler) Handle(ctx context.Context, cmd ReserveSlotCommand) (result *ReserveSlotResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.reserve", trace.WithAttributes(
		attribute.String("slot_id", cmd.SlotID.String()),
		attribute.String("idempotency_key", cmd.IdempotencyKey),
	))
	defer func() { observability.EndSpan(span, err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	price, err := sharedDomain.ParseMoney(cmd.Price, cmd.Currency)
	if err != nil {
		return nil, &domain.ValidationError{Field: "price", Reason: err.Error()}
	}
	now := h.clock.Now()
	if cmd.ScheduledAt.Before(now) {
		return nil, &domain.PastBookingError{ScheduledAt: cmd.ScheduledAt, Now: now}
	}

	if replay, err := h.replay(ctx, cmd.IdempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	key := domain.SlotLockKey(cmd.SlotID)
	owner := lock.NewOwner()
	waited, err := lock.Acquire(ctx, h.locker, key, owner, h.config.LockTTL, h.config.LockWait, h.config.LockRetryInterval)
	h.metrics.Timing(observability.MetricLockWait, waited)
	if err != nil {
		if errors.Is(err, lock.ErrWaitTimeout) {
			h.metrics.Counter(observability.MetricLockTimeouts, 1)
			return nil, errors.WithSecondaryError(&domain.LockAcquisitionError{Key: key, Waited: waited}, err)
		}
		return nil, errors.Wrapf(err, "acquire %s", key)
	}
	h.metrics.Counter(observability.MetricLockAcquired, 1)
	defer h.release(ctx, key, owner)

	existing, err := h.repo.FindActiveBySlot(ctx, cmd.SlotID)
	switch {
	case err == nil:
		h.metrics.Counter(observability.MetricBookingsSlotTaken, 1)
		return nil, &domain.SlotAlreadyBookedError{SlotID: cmd.SlotID, ExistingBookingID: existing.ID()}
	case !errors.Is(err, domain.ErrBookingNotFound):
		return nil, err
	}

	booking, events, err := domain.NewBooking(domain.NewBookingParams{
		AccountID:       cmd.AccountID,
		SlotID:          cmd.SlotID,
		ClientUserID:    cmd.ClientUserID,
		ServiceID:       cmd.ServiceID,
		Price:           price,
		ScheduledAt:     cmd.ScheduledAt,
		DurationMinutes: cmd.DurationMinutes,
		Source:          domain.Source(cmd.Source),
		ClientName:      cmd.ClientName,
		ClientPhone:     cmd.ClientPhone,
		ServiceName:     cmd.ServiceName,
		Notes:           cmd.Notes,
		IdempotencyKey:  cmd.IdempotencyKey,
		Metadata:        cmd.Metadata,
	}, now)
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		stored, inserted, err := h.repo.InsertIfAbsent(txCtx, booking)
		if err != nil {
			return err
		}
		if !inserted {
			// lost the idempotency-key race to a request for another slot
			result = &ReserveSlotResult{Booking: stored, Replayed: true}
			return nil
		}
		result = &ReserveSlotResult{Booking: stored}
		return appendEvents(txCtx, h.outboxRepo, events, cmd.ClientUserID, h.config.OutboxMaxRetries)
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		h.metrics.Counter(observability.MetricBookingsReplayed, 1)
		return result, nil
	}
	h.metrics.Counter(observability.MetricBookingsReserved, 1)
	h.logger.InfoContext(ctx, "slot reserved",
		"booking_id", result.Booking.ID(),
		"slot_id", cmd.SlotID,
		"lock_wait", waited,
	)
	return result, nil
}

func (h *ReserveSlotHandler) replay(ctx context.Context, idempotencyKey string) (*ReserveSlotResult, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	existing, err := h.repo.FindByIdempotencyKey(ctx, idempotencyKey)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.metrics.Counter(observability.MetricBookingsReplayed, 1)
	return &ReserveSlotResult{Booking: existing, Replayed: true}, nil
}

// release runs even when ctx was cancelled.
func (h *ReserveSlotHandler) release(ctx context.Context, key, owner string) {
	released, err := h.locker.Release(context.WithoutCancel(ctx), key, owner)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to release slot lock", "key", key, "error", err)
		return
	}
	if !released {
		h.logger.WarnContext(ctx, "slot lock expired before release", "key", key, "ttl", h.config.LockTTL)
	}
}
