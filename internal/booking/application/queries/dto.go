package queries

import (
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
)

// BookingDTO is the read model of a booking.
type BookingDTO struct {
	ID              uuid.UUID         `json:"id"`
	AccountID       uuid.UUID         `json:"account_id"`
	SlotID          uuid.UUID         `json:"slot_id"`
	ClientUserID    uuid.UUID         `json:"client_user_id"`
	ServiceID       uuid.UUID         `json:"service_id"`
	Price           string            `json:"price"`
	Currency        string            `json:"currency"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	Source          string            `json:"source"`
	ClientName      string            `json:"client_name,omitempty"`
	ClientPhone     string            `json:"client_phone,omitempty"`
	ServiceName     string            `json:"service_name,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	InternalNotes   string            `json:"internal_notes,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ConfirmedAt     *time.Time        `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`

	Visit  *VisitDTO  `json:"visit,omitempty"`
	Events []EventDTO `json:"events,omitempty"`
}

// VisitDTO is the read model of a visit.
type VisitDTO struct {
	ActualDurationMinutes int        `json:"actual_duration_minutes"`
	ActualPrice           string     `json:"actual_price"`
	Rating                *int       `json:"rating,omitempty"`
	Review                string     `json:"review,omitempty"`
	ReviewedAt            *time.Time `json:"reviewed_at,omitempty"`
	VisitedAt             time.Time  `json:"visited_at"`
}

// EventDTO describes the delivery state of one outbox message.
type EventDTO struct {
	ID            int64      `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	State         string     `json:"state"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// Delivery states of an outbox message.
const (
	EventPending   = "pending"
	EventRetrying  = "retrying"
	EventPublished = "published"
	EventExhausted = "exhausted"
)

func toBookingDTO(b *domain.Booking) *BookingDTO {
	return &BookingDTO{
		ID:              b.ID(),
		AccountID:       b.AccountID(),
		SlotID:          b.SlotID(),
		ClientUserID:    b.ClientUserID(),
		ServiceID:       b.ServiceID(),
		Price:           b.Price().Amount().StringFixed(2),
		Currency:        b.Price().Currency(),
		ScheduledAt:     b.ScheduledAt(),
		DurationMinutes: b.DurationMinutes(),
		Status:          b.Status().String(),
		PaymentStatus:   b.PaymentStatus().String(),
		Source:          string(b.Source()),
		ClientName:      b.ClientName(),
		ClientPhone:     b.ClientPhone(),
		ServiceName:     b.ServiceName(),
		Notes:           b.Notes(),
		InternalNotes:   b.InternalNotes(),
		Metadata:        b.Metadata(),
		IdempotencyKey:  b.IdempotencyKey(),
		Version:         b.Version(),
		CreatedAt:       b.CreatedAt(),
		UpdatedAt:       b.UpdatedAt(),
		ConfirmedAt:     b.ConfirmedAt(),
		CancelledAt:     b.CancelledAt(),
		CompletedAt:     b.CompletedAt(),
	}
}

func toVisitDTO(v *domain.VisitHistory) *VisitDTO {
	return &VisitDTO{
		ActualDurationMinutes: v.ActualDurationMinutes(),
		ActualPrice:           v.ActualPrice().String(),
		Rating:                v.Rating(),
		Review:                v.Review(),
		ReviewedAt:            v.ReviewedAt(),
		VisitedAt:             v.VisitedAt(),
	}
}

func toEventDTO(m *outbox.Message) EventDTO {
	dto := EventDTO{
		ID:          m.ID,
		EventID:     m.EventID,
		EventType:   m.EventType,
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		PublishedAt: m.PublishedAt,
	}
	switch {
	case m.IsPublished():
		dto.State = EventPublished
	case m.IsExhausted():
		dto.State = EventExhausted
	case m.RetryCount > 0:
		dto.State = EventRetrying
		dto.NextAttemptAt = m.NextAttemptAt()
	default:
		dto.State = EventPending
	}
	return dto
}
