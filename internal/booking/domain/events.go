package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
)

// AggregateType is the aggregate type recorded on booking events.
const AggregateType = "booking"

// Event types.
const (
	EventTypeCreated              = "booking.created"
	EventTypeConfirmed            = "booking.confirmed"
	EventTypeCancelled            = "booking.cancelled"
	EventTypeCompleted            = "booking.completed"
	EventTypeNoShow               = "booking.no_show"
	EventTypePaymentStatusUpdated = "booking.payment_status_updated"
	EventTypeReviewAdded          = "booking.review_added"
)

// BookingCreated is emitted when a slot is reserved.
type BookingCreated struct {
	sharedDomain.BaseEvent
	BookingID      uuid.UUID `json:"booking_id"`
	AccountID      uuid.UUID `json:"account_id"`
	SlotID         uuid.UUID `json:"slot_id"`
	ClientUserID   uuid.UUID `json:"client_user_id"`
	ServiceID      uuid.UUID `json:"service_id"`
	Price          string    `json:"price"`
	Currency       string    `json:"currency"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Source         Source    `json:"source"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// BookingConfirmed is emitted by Confirm.
type BookingConfirmed struct {
	sharedDomain.BaseEvent
	BookingID   uuid.UUID `json:"booking_id"`
	AccountID   uuid.UUID `json:"account_id"`
	SlotID      uuid.UUID `json:"slot_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	Version     int64     `json:"version"`
}

// BookingCancelled is emitted by Cancel.
type BookingCancelled struct {
	sharedDomain.BaseEvent
	BookingID      uuid.UUID `json:"booking_id"`
	AccountID      uuid.UUID `json:"account_id"`
	SlotID         uuid.UUID `json:"slot_id"`
	PreviousStatus Status    `json:"previous_status"`
	Reason         string    `json:"reason"`
	CancelledAt    time.Time `json:"cancelled_at"`
	Version        int64     `json:"version"`
}

// BookingCompleted is emitted by Complete.
type BookingCompleted struct {
	sharedDomain.BaseEvent
	BookingID   uuid.UUID `json:"booking_id"`
	AccountID   uuid.UUID `json:"account_id"`
	SlotID      uuid.UUID `json:"slot_id"`
	CompletedAt time.Time `json:"completed_at"`
	Version     int64     `json:"version"`
}

// BookingNoShow is emitted by MarkAsNoShow.
type BookingNoShow struct {
	sharedDomain.BaseEvent
	BookingID uuid.UUID `json:"booking_id"`
	AccountID uuid.UUID `json:"account_id"`
	SlotID    uuid.UUID `json:"slot_id"`
	MarkedAt  time.Time `json:"marked_at"`
	Version   int64     `json:"version"`
}

// PaymentStatusUpdated is emitted by UpdatePaymentStatus.
type PaymentStatusUpdated struct {
	sharedDomain.BaseEvent
	BookingID uuid.UUID     `json:"booking_id"`
	AccountID uuid.UUID     `json:"account_id"`
	From      PaymentStatus `json:"from"`
	To        PaymentStatus `json:"to"`
	Version   int64         `json:"version"`
}

// ReviewAdded is emitted when a client reviews a completed visit.
type ReviewAdded struct {
	sharedDomain.BaseEvent
	BookingID    uuid.UUID `json:"booking_id"`
	AccountID    uuid.UUID `json:"account_id"`
	ClientUserID uuid.UUID `json:"client_user_id"`
	Rating       int       `json:"rating"`
	Review       string    `json:"review,omitempty"`
}

func newBaseEvent(bookingID uuid.UUID, eventType string, at time.Time) sharedDomain.BaseEvent {
	return sharedDomain.NewBaseEvent(bookingID, AggregateType, eventType, at)
}
