package queries

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

// GetSlotStatusQuery asks who holds a slot.
type GetSlotStatusQuery struct {
	SlotID uuid.UUID
}

// SlotStatusDTO reports whether a slot is taken and by which booking.
type SlotStatusDTO struct {
	SlotID    uuid.UUID  `json:"slot_id"`
	Available bool       `json:"available"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// GetSlotStatusHandler handles the GetSlotStatusQuery.
type GetSlotStatusHandler struct {
	bookings domain.Repository
}

// NewGetSlotStatusHandler creates a new GetSlotStatusHandler.
func NewGetSlotStatusHandler(bookings domain.Repository) *GetSlotStatusHandler {
	return &GetSlotStatusHandler{bookings: bookings}
}

// Handle executes the GetSlotStatusQuery. It reads without the slot lock, so
// the answer may be stale by the time a reservation is attempted.
func (h *GetSlotStatusHandler) Handle(ctx context.Context, query GetSlotStatusQuery) (*SlotStatusDTO, error) {
	taken, err := h.bookings.ExistsActiveForSlot(ctx, query.SlotID)
	if err != nil {
		return nil, err
	}
	dto := &SlotStatusDTO{SlotID: query.SlotID, Available: !taken}
	if !taken {
		return dto, nil
	}

	holder, err := h.bookings.FindActiveBySlot(ctx, query.SlotID)
	if errors.Is(err, domain.ErrBookingNotFound) {
		// released between the two reads
		dto.Available = true
		return dto, nil
	}
	if err != nil {
		return nil, err
	}
	id := holder.ID()
	dto.BookingID = &id
	dto.Status = holder.Status().String()
	return dto, nil
}
