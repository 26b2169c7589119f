package domain

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
)

// Booking is the reservation aggregate. It is immutable: every transition
// returns a new Booking and the events it produced, leaving the receiver as it
// was.
type Booking struct {
	id              uuid.UUID
	accountID       uuid.UUID
	slotID          uuid.UUID
	clientUserID    uuid.UUID
	serviceID       uuid.UUID
	price           sharedDomain.Money
	scheduledAt     time.Time
	durationMinutes int
	status          Status
	paymentStatus   PaymentStatus
	source          Source
	clientName      string
	clientPhone     string
	serviceName     string
	notes           string
	internalNotes   string
	metadata        map[string]string
	idempotencyKey  string
	version         int64
	createdAt       time.Time
	updatedAt       time.Time
	confirmedAt     *time.Time
	cancelledAt     *time.Time
	completedAt     *time.Time
}

// NewBookingParams describes a reservation request after input validation.
type NewBookingParams struct {
	ID              uuid.UUID // generated when Nil
	AccountID       uuid.UUID
	SlotID          uuid.UUID
	ClientUserID    uuid.UUID
	ServiceID       uuid.UUID
	Price           sharedDomain.Money
	ScheduledAt     time.Time
	DurationMinutes int
	Source          Source
	ClientName      string
	ClientPhone     string
	ServiceName     string
	Notes           string
	IdempotencyKey  string
	Metadata        map[string]string
}

// NewBooking creates a booking in StatusCreated at version 0.
func NewBooking(p NewBookingParams, now time.Time) (*Booking, []sharedDomain.DomainEvent, error) {
	now = now.UTC()

	for field, id := range map[string]uuid.UUID{
		"account_id":     p.AccountID,
		"slot_id":        p.SlotID,
		"client_user_id": p.ClientUserID,
		"service_id":     p.ServiceID,
	} {
		if id == uuid.Nil {
			return nil, nil, &ValidationError{Field: field, Reason: "is required"}
		}
	}
	if p.ScheduledAt.IsZero() {
		return nil, nil, &ValidationError{Field: "scheduled_at", Reason: "is required"}
	}
	if p.ScheduledAt.Before(now) {
		return nil, nil, &PastBookingError{ScheduledAt: p.ScheduledAt, Now: now}
	}
	if p.DurationMinutes < 0 {
		return nil, nil, &ValidationError{Field: "duration_minutes", Reason: "must not be negative"}
	}
	if len(p.IdempotencyKey) > 255 {
		return nil, nil, &ValidationError{Field: "idempotency_key", Reason: "longer than 255 characters"}
	}
	source, err := ParseSource(string(p.Source))
	if err != nil {
		return nil, nil, err
	}
	price := p.Price
	if price.Currency() == "" {
		price = sharedDomain.MustMoney("0", "")
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	b := &Booking{
		id:              id,
		accountID:       p.AccountID,
		slotID:          p.SlotID,
		clientUserID:    p.ClientUserID,
		serviceID:       p.ServiceID,
		price:           price,
		scheduledAt:     p.ScheduledAt.UTC(),
		durationMinutes: p.DurationMinutes,
		status:          StatusCreated,
		paymentStatus:   PaymentUnpaid,
		source:          source,
		clientName:      strings.TrimSpace(p.ClientName),
		clientPhone:     strings.TrimSpace(p.ClientPhone),
		serviceName:     strings.TrimSpace(p.ServiceName),
		notes:           p.Notes,
		metadata:        maps.Clone(p.Metadata),
		idempotencyKey:  strings.TrimSpace(p.IdempotencyKey),
		version:         0,
		createdAt:       now,
		updatedAt:       now,
	}

	event := &BookingCreated{
		BaseEvent:      newBaseEvent(b.id, EventTypeCreated, now),
		BookingID:      b.id,
		AccountID:      b.accountID,
		SlotID:         b.slotID,
		ClientUserID:   b.clientUserID,
		ServiceID:      b.serviceID,
		Price:          b.price.Amount().StringFixed(2),
		Currency:       b.price.Currency(),
		ScheduledAt:    b.scheduledAt,
		Source:         b.source,
		IdempotencyKey: b.idempotencyKey,
	}
	return b, []sharedDomain.DomainEvent{event}, nil
}

// applyTransition moves a copy of b along the state machine, stamping the
// update time and bumping the version. The receiver is left untouched.
func (b *Booking) applyTransition(trigger Trigger, now time.Time) (*Booking, error) {
	to, err := NextStatus(b.status, trigger)
	if err != nil {
		return nil, err
	}

	next := b.clone()
	next.status = to
	next.updatedAt = now
	next.version = b.version + 1

	switch to {
	case StatusConfirmed:
		next.confirmedAt = stampOnce(next.confirmedAt, now)
	case StatusCancelled:
		next.cancelledAt = stampOnce(next.cancelledAt, now)
	case StatusCompleted:
		next.completedAt = stampOnce(next.completedAt, now)
	}
	return next, nil
}

// Confirm moves a created booking to confirmed.
func (b *Booking) Confirm(now time.Time) (*Booking, []sharedDomain.DomainEvent, error) {
	now = now.UTC()
	next, err := b.applyTransition(TriggerConfirm, now)
	if err != nil {
		return nil, nil, err
	}
	return next, []sharedDomain.DomainEvent{&BookingConfirmed{
		BaseEvent:   newBaseEvent(next.id, EventTypeConfirmed, now),
		BookingID:   next.id,
		AccountID:   next.accountID,
		SlotID:      next.slotID,
		ConfirmedAt: now,
		Version:     next.version,
	}}, nil
}

// Cancel cancels a created or confirmed booking and appends the reason to the
// internal notes.
func (b *Booking) Cancel(reason string, now time.Time) (*Booking, []sharedDomain.DomainEvent, error) {
	now = now.UTC()
	next, err := b.applyTransition(TriggerCancel, now)
	if err != nil {
		return nil, nil, err
	}

	reason = strings.TrimSpace(reason)
	entry := "Cancelled"
	if reason != "" {
		entry += ": " + reason
	}
	next.internalNotes = appendNote(next.internalNotes, entry)

	return next, []sharedDomain.DomainEvent{&BookingCancelled{
		BaseEvent:      newBaseEvent(next.id, EventTypeCancelled, now),
		BookingID:      next.id,
		AccountID:      next.accountID,
		SlotID:         next.slotID,
		PreviousStatus: b.status,
		Reason:         reason,
		CancelledAt:    now,
		Version:        next.version,
	}}, nil
}

// Complete marks a confirmed booking as attended.
func (b *Booking) Complete(now time.Time) (*Booking, []sharedDomain.DomainEvent, error) {
	now = now.UTC()
	next, err := b.applyTransition(TriggerComplete, now)
	if err != nil {
		return nil, nil, err
	}
	return next, []sharedDomain.DomainEvent{&BookingCompleted{
		BaseEvent:   newBaseEvent(next.id, EventTypeCompleted, now),
		BookingID:   next.id,
		AccountID:   next.accountID,
		SlotID:      next.slotID,
		CompletedAt: now,
		Version:     next.version,
	}}, nil
}

// MarkAsNoShow records that the client of a confirmed booking did not come.
func (b *Booking) MarkAsNoShow(now time.Time) (*Booking, []sharedDomain.DomainEvent, error) {
	now = now.UTC()
	next, err := b.applyTransition(TriggerNoShow, now)
	if err != nil {
		return nil, nil, err
	}
	return next, []sharedDomain.DomainEvent{&BookingNoShow{
		BaseEvent: newBaseEvent(next.id, EventTypeNoShow, now),
		BookingID: next.id,
		AccountID: next.accountID,
		SlotID:    next.slotID,
		MarkedAt:  now,
		Version:   next.version,
	}}, nil
}

// UpdatePaymentStatus moves the payment status along its own table. It is
// allowed in every lifecycle status so cancelled bookings can be refunded.
// The lifecycle status is not affected, the version is bumped.
func (b *Booking) UpdatePaymentStatus(to PaymentStatus, now time.Time) (*Booking, []sharedDomain.DomainEvent, error) {
	now = now.UTC()
	if !b.paymentStatus.CanTransitionTo(to) {
		return nil, nil, &InvalidTransitionError{Subject: "payment", From: string(b.paymentStatus), Trigger: "set " + string(to)}
	}

	next := b.clone()
	next.paymentStatus = to
	next.updatedAt = now
	next.version = b.version + 1

	return next, []sharedDomain.DomainEvent{&PaymentStatusUpdated{
		BaseEvent: newBaseEvent(next.id, EventTypePaymentStatusUpdated, now),
		BookingID: next.id,
		AccountID: next.accountID,
		From:      b.paymentStatus,
		To:        to,
		Version:   next.version,
	}}, nil
}

func (b *Booking) clone() *Booking {
	c := *b
	c.metadata = maps.Clone(b.metadata)
	return &c
}

func stampOnce(existing *time.Time, now time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	t := now
	return &t
}

func appendNote(notes, entry string) string {
	if notes == "" {
		return entry
	}
	return notes + "\n" + entry
}

// SlotLockKey is the LockStore key guarding a slot.
func SlotLockKey(slotID uuid.UUID) string {
	return "booking:slot:" + slotID.String()
}

// AccountLockKey is the LockStore key guarding account-wide operations.
func AccountLockKey(accountID uuid.UUID) string {
	return "booking:account:" + accountID.String()
}

func (b *Booking) ID() uuid.UUID                { return b.id }
func (b *Booking) AccountID() uuid.UUID         { return b.accountID }
func (b *Booking) SlotID() uuid.UUID            { return b.slotID }
func (b *Booking) ClientUserID() uuid.UUID      { return b.clientUserID }
func (b *Booking) ServiceID() uuid.UUID         { return b.serviceID }
func (b *Booking) Price() sharedDomain.Money    { return b.price }
func (b *Booking) ScheduledAt() time.Time       { return b.scheduledAt }
func (b *Booking) DurationMinutes() int         { return b.durationMinutes }
func (b *Booking) Status() Status               { return b.status }
func (b *Booking) PaymentStatus() PaymentStatus { return b.paymentStatus }
func (b *Booking) Source() Source               { return b.source }
func (b *Booking) ClientName() string           { return b.clientName }
func (b *Booking) ClientPhone() string          { return b.clientPhone }
func (b *Booking) ServiceName() string          { return b.serviceName }
func (b *Booking) Notes() string                { return b.notes }
func (b *Booking) InternalNotes() string        { return b.internalNotes }
func (b *Booking) Metadata() map[string]string  { return maps.Clone(b.metadata) }
func (b *Booking) IdempotencyKey() string       { return b.idempotencyKey }
func (b *Booking) Version() int64               { return b.version }
func (b *Booking) CreatedAt() time.Time         { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time         { return b.updatedAt }
func (b *Booking) ConfirmedAt() *time.Time      { return b.confirmedAt }
func (b *Booking) CancelledAt() *time.Time      { return b.cancelledAt }
func (b *Booking) CompletedAt() *time.Time      { return b.completedAt }
func (b *Booking) IsActive() bool               { return b.status.IsActive() }
