package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/reservo/internal/shared/application"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reservo/pkg/clock"
)

// AddReviewCommand rates a completed visit.
type AddReviewCommand struct {
	BookingID uuid.UUID `json:"booking_id" validate:"required"`
	ActorID   uuid.UUID `json:"actor_id"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review" validate:"max=4000"`
}

// AddReviewHandler handles the AddReviewCommand. A visit carries one review,
// so no version is needed: the second writer fails on the stored rating.
type AddReviewHandler struct {
	visits     domain.VisitHistoryRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      clock.Clock
	maxRetries int
}

// NewAddReviewHandler creates a new AddReviewHandler.
func NewAddReviewHandler(visits domain.VisitHistoryRepository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clk clock.Clock, outboxMaxRetries int) *AddReviewHandler {
	return &AddReviewHandler{
		visits:     visits,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clk,
		maxRetries: outboxMaxRetries,
	}
}

// Handle executes the AddReviewCommand.
func (h *AddReviewHandler) Handle(ctx context.Context, cmd AddReviewCommand) (*domain.VisitHistory, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	var result *domain.VisitHistory
	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		visit, err := h.visits.FindByBookingID(txCtx, cmd.BookingID)
		if err != nil {
			return err
		}
		reviewed, events, err := visit.AddReview(cmd.Rating, cmd.Review, h.clock.Now())
		if err != nil {
			return err
		}
		if err := h.visits.Save(txCtx, reviewed); err != nil {
			return err
		}
		if err := appendEvents(txCtx, h.outboxRepo, events, cmd.ActorID, h.maxRetries); err != nil {
			return err
		}
		result = reviewed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
