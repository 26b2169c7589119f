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
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reservo/pkg/clock"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// AnyVersion skips the expected-version check. The write itself is still
// guarded by the version that was loaded.
const AnyVersion int64 = -1

// TransitionCommand targets a booking as read at ExpectedVersion.
type TransitionCommand struct {
	BookingID       uuid.UUID
	ExpectedVersion int64
	ActorID         uuid.UUID
}

// CancelCommand cancels a booking. Reason is appended to the internal notes.
type CancelCommand struct {
	TransitionCommand
	Reason string
}

// CompleteCommand completes a booking and records the visit. Zero values fall
// back to the booked duration and price.
type CompleteCommand struct {
	TransitionCommand
	ActualDurationMinutes int
	ActualPrice           string
}

// PaymentCommand moves the payment status.
type PaymentCommand struct {
	TransitionCommand
	Status string
}

// TransitionHandler applies lifecycle and payment transitions under
// optimistic concurrency: the update only lands if the stored version is the
// one the transition was computed from.
type TransitionHandler struct {
	repo       domain.Repository
	visits     domain.VisitHistoryRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      clock.Clock
	maxRetries int
	metrics    observability.Metrics
	logger     *slog.Logger
}

// NewTransitionHandler creates a new TransitionHandler. outboxMaxRetries is
// the retry budget of the events it appends.
func NewTransitionHandler(
	repo domain.Repository,
	visits domain.VisitHistoryRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clk clock.Clock,
	outboxMaxRetries int,
	metrics observability.Metrics,
	logger *slog.Logger,
) *TransitionHandler {
	return &TransitionHandler{
		repo:       repo,
		visits:     visits,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clk,
		maxRetries: outboxMaxRetries,
		metrics:    observability.MetricsOrNoop(metrics),
		logger:     observability.LoggerOrDefault(logger),
	}
}

type mutation func(b *domain.Booking, now time.Time) (*domain.Booking, []sharedDomain.DomainEvent, error)

// afterUpdate writes rows that belong to the same unit of work.
type afterUpdate func(ctx context.Context, b *domain.Booking, now time.Time) ([]sharedDomain.DomainEvent, error)

func (h *TransitionHandler) Confirm(ctx context.Context, cmd TransitionCommand) (*domain.Booking, error) {
	return h.apply(ctx, "confirm", cmd, (*domain.Booking).Confirm, nil)
}

func (h *TransitionHandler) Cancel(ctx context.Context, cmd CancelCommand) (*domain.Booking, error) {
	return h.apply(ctx, "cancel", cmd.TransitionCommand, func(b *domain.Booking, now time.Time) (*domain.Booking, []sharedDomain.DomainEvent, error) {
		return b.Cancel(cmd.Reason, now)
	}, nil)
}

// Complete also stores the visit history of the booking.
func (h *TransitionHandler) Complete(ctx context.Context, cmd CompleteCommand) (*domain.Booking, error) {
	var actualPrice *sharedDomain.Money
	if cmd.ActualPrice != "" {
		price, err := sharedDomain.ParseMoney(cmd.ActualPrice, "")
		if err != nil {
			return nil, &domain.ValidationError{Field: "actual_price", Reason: err.Error()}
		}
		actualPrice = &price
	}

	return h.apply(ctx, "complete", cmd.TransitionCommand, (*domain.Booking).Complete,
		func(ctx context.Context, b *domain.Booking, now time.Time) ([]sharedDomain.DomainEvent, error) {
			price := actualPrice
			if price != nil && price.Currency() != b.Price().Currency() {
				p, err := sharedDomain.NewMoney(price.Amount(), b.Price().Currency())
				if err != nil {
					return nil, err
				}
				price = &p
			}
			visit, err := domain.NewVisitHistory(b, cmd.ActualDurationMinutes, price, now)
			if err != nil {
				return nil, err
			}
			return nil, h.visits.Save(ctx, visit)
		})
}

func (h *TransitionHandler) MarkNoShow(ctx context.Context, cmd TransitionCommand) (*domain.Booking, error) {
	return h.apply(ctx, "no_show", cmd, (*domain.Booking).MarkAsNoShow, nil)
}

func (h *TransitionHandler) UpdatePaymentStatus(ctx context.Context, cmd PaymentCommand) (*domain.Booking, error) {
	status, err := domain.ParsePaymentStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	return h.apply(ctx, "payment", cmd.TransitionCommand, func(b *domain.Booking, now time.Time) (*domain.Booking, []sharedDomain.DomainEvent, error) {
		return b.UpdatePaymentStatus(status, now)
	}, nil)
}

func (h *TransitionHandler) apply(ctx context.Context, op string, cmd TransitionCommand, mutate mutation, after afterUpdate) (result *domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking."+op, trace.WithAttributes(
		attribute.String("booking_id", cmd.BookingID.String()),
		attribute.Int64("expected_version", cmd.ExpectedVersion),
	))
	defer func() { observability.EndSpan(span, err) }()

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		current, err := h.repo.FindByID(txCtx, cmd.BookingID)
		if err != nil {
			return err
		}
		if cmd.ExpectedVersion != AnyVersion && current.Version() != cmd.ExpectedVersion {
			return errors.Wrapf(domain.ErrOptimisticConflict,
				"booking %s is at version %d, expected %d", cmd.BookingID, current.Version(), cmd.ExpectedVersion)
		}

		now := h.clock.Now()
		next, events, err := mutate(current, now)
		if err != nil {
			return err
		}
		if err := h.repo.UpdateWithVersion(txCtx, next, current.Version()); err != nil {
			return err
		}
		if after != nil {
			more, err := after(txCtx, next, now)
			if err != nil {
				return err
			}
			events = append(events, more...)
		}
		if err := appendEvents(txCtx, h.outboxRepo, events, cmd.ActorID, h.maxRetries); err != nil {
			return err
		}
		result = next
		return nil
	})

	tag := observability.T("op", op)
	switch {
	case err == nil:
		h.metrics.Counter(observability.MetricBookingsTransitions, 1, tag)
		h.logger.InfoContext(ctx, "booking updated",
			"booking_id", result.ID(),
			"op", op,
			"status", result.Status(),
			"version", result.Version(),
		)
	case errors.Is(err, domain.ErrOptimisticConflict):
		h.metrics.Counter(observability.MetricBookingsConflicts, 1, tag)
		h.logger.DebugContext(ctx, "booking update conflicted", "booking_id", cmd.BookingID, "op", op, "error", err)
	}
	return result, err
}
