package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
)

// Snapshot is the flat persisted form of a Booking. Repositories write it and
// rebuild bookings from it with RehydrateBooking.
type Snapshot struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	SlotID          uuid.UUID
	ClientUserID    uuid.UUID
	ServiceID       uuid.UUID
	Price           sharedDomain.Money
	ScheduledAt     time.Time
	DurationMinutes int
	Status          Status
	PaymentStatus   PaymentStatus
	Source          Source
	ClientName      string
	ClientPhone     string
	ServiceName     string
	Notes           string
	InternalNotes   string
	Metadata        map[string]string
	IdempotencyKey  string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	CompletedAt     *time.Time
}

// Snapshot returns the persisted form of b.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:              b.id,
		AccountID:       b.accountID,
		SlotID:          b.slotID,
		ClientUserID:    b.clientUserID,
		ServiceID:       b.serviceID,
		Price:           b.price,
		ScheduledAt:     b.scheduledAt,
		DurationMinutes: b.durationMinutes,
		Status:          b.status,
		PaymentStatus:   b.paymentStatus,
		Source:          b.source,
		ClientName:      b.clientName,
		ClientPhone:     b.clientPhone,
		ServiceName:     b.serviceName,
		Notes:           b.notes,
		InternalNotes:   b.internalNotes,
		Metadata:        maps.Clone(b.metadata),
		IdempotencyKey:  b.idempotencyKey,
		Version:         b.version,
		CreatedAt:       b.createdAt,
		UpdatedAt:       b.updatedAt,
		ConfirmedAt:     b.confirmedAt,
		CancelledAt:     b.cancelledAt,
		CompletedAt:     b.completedAt,
	}
}

// RehydrateBooking rebuilds a booking from storage without validation or events.
func RehydrateBooking(s Snapshot) *Booking {
	return &Booking{
		id:              s.ID,
		accountID:       s.AccountID,
		slotID:          s.SlotID,
		clientUserID:    s.ClientUserID,
		serviceID:       s.ServiceID,
		price:           s.Price,
		scheduledAt:     s.ScheduledAt.UTC(),
		durationMinutes: s.DurationMinutes,
		status:          s.Status,
		paymentStatus:   s.PaymentStatus,
		source:          s.Source,
		clientName:      s.ClientName,
		clientPhone:     s.ClientPhone,
		serviceName:     s.ServiceName,
		notes:           s.Notes,
		internalNotes:   s.InternalNotes,
		metadata:        maps.Clone(s.Metadata),
		idempotencyKey:  s.IdempotencyKey,
		version:         s.Version,
		createdAt:       s.CreatedAt.UTC(),
		updatedAt:       s.UpdatedAt.UTC(),
		confirmedAt:     s.ConfirmedAt,
		cancelledAt:     s.CancelledAt,
		completedAt:     s.CompletedAt,
	}
}
