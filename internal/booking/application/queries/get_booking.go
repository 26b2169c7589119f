package queries

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
)

// GetBookingQuery contains the parameters for getting a single booking.
type GetBookingQuery struct {
	BookingID     uuid.UUID
	IncludeEvents bool
}

// GetBookingHandler handles the GetBookingQuery.
type GetBookingHandler struct {
	bookings   domain.Repository
	visits     domain.VisitHistoryRepository
	outboxRepo outbox.Repository
}

// NewGetBookingHandler creates a new GetBookingHandler.
func NewGetBookingHandler(bookings domain.Repository, visits domain.VisitHistoryRepository, outboxRepo outbox.Repository) *GetBookingHandler {
	return &GetBookingHandler{bookings: bookings, visits: visits, outboxRepo: outboxRepo}
}

// Handle executes the GetBookingQuery. The visit is attached once the booking
// is completed.
func (h *GetBookingHandler) Handle(ctx context.Context, query GetBookingQuery) (*BookingDTO, error) {
	booking, err := h.bookings.FindByID(ctx, query.BookingID)
	if err != nil {
		return nil, err
	}
	dto := toBookingDTO(booking)

	if booking.Status() == domain.StatusCompleted {
		visit, err := h.visits.FindByBookingID(ctx, booking.ID())
		switch {
		case err == nil:
			dto.Visit = toVisitDTO(visit)
		case !errors.Is(err, domain.ErrVisitNotFound):
			return nil, err
		}
	}

	if query.IncludeEvents {
		msgs, err := h.outboxRepo.ListByAggregate(ctx, booking.ID())
		if err != nil {
			return nil, errors.Wrap(err, "list booking events")
		}
		dto.Events = make([]EventDTO, 0, len(msgs))
		for _, m := range msgs {
			dto.Events = append(dto.Events, toEventDTO(m))
		}
	}
	return dto, nil
}
