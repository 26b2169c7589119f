package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrorKind classifies booking failures so callers can branch on the outcome.
type ErrorKind string

const (
	KindUnknown            ErrorKind = ""
	KindValidation         ErrorKind = "validation"
	KindInvalidTransition  ErrorKind = "invalid_transition"
	KindSlotAlreadyBooked  ErrorKind = "slot_already_booked"
	KindLockAcquisition    ErrorKind = "lock_acquisition"
	KindOptimisticConflict ErrorKind = "optimistic_conflict"
	KindNotFound           ErrorKind = "not_found"
)

// Stable error codes shared with API clients.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodePastBooking        = "PAST_BOOKING_ATTEMPT"
	CodeInvalidTransition  = "INVALID_STATE_TRANSITION"
	CodeSlotAlreadyBooked  = "SLOT_ALREADY_BOOKED"
	CodeLockAcquisition    = "LOCK_ACQUISITION_FAILED"
	CodeOptimisticConflict = "OPTIMISTIC_LOCK_CONFLICT"
	CodeNotFound           = "BOOKING_NOT_FOUND"
)

var (
	// ErrOptimisticConflict means the stored version moved since the booking
	// was read. Reload and re-run the operation.
	ErrOptimisticConflict = errors.New("booking was modified concurrently")
	// ErrBookingNotFound is returned by lookups that match nothing.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrVisitNotFound is returned when a booking has no visit history.
	ErrVisitNotFound = errors.New("visit history not found")
)

// ValidationError rejects malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Kind() ErrorKind { return KindValidation }
func (e *ValidationError) Code() string    { return CodeValidation }

// PastBookingError rejects a reservation for a time that has already passed.
type PastBookingError struct {
	ScheduledAt time.Time
	Now         time.Time
}

func (e *PastBookingError) Error() string {
	return fmt.Sprintf("cannot book %s: it is in the past (now %s)",
		e.ScheduledAt.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e *PastBookingError) Kind() ErrorKind { return KindValidation }
func (e *PastBookingError) Code() string    { return CodePastBooking }

// InvalidTransitionError means Trigger is not allowed from From.
type InvalidTransitionError struct {
	Subject string
	From    string
	Trigger string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot %s from %s", e.Subject, e.Trigger, e.From)
}

func (e *InvalidTransitionError) Kind() ErrorKind { return KindInvalidTransition }
func (e *InvalidTransitionError) Code() string    { return CodeInvalidTransition }

// SlotAlreadyBookedError is the normal outcome of losing the race for a slot.
type SlotAlreadyBookedError struct {
	SlotID            uuid.UUID
	ExistingBookingID uuid.UUID
}

func (e *SlotAlreadyBookedError) Error() string {
	return fmt.Sprintf("slot %s is already booked by %s", e.SlotID, e.ExistingBookingID)
}

func (e *SlotAlreadyBookedError) Kind() ErrorKind { return KindSlotAlreadyBooked }
func (e *SlotAlreadyBookedError) Code() string    { return CodeSlotAlreadyBooked }

// LockAcquisitionError means the slot lock could not be taken within the wait
// budget. Transient.
type LockAcquisitionError struct {
	Key    string
	Waited time.Duration
}

func (e *LockAcquisitionError) Error() string {
	return fmt.Sprintf("could not acquire lock %s after %dms", e.Key, e.Waited.Milliseconds())
}

func (e *LockAcquisitionError) Kind() ErrorKind { return KindLockAcquisition }
func (e *LockAcquisitionError) Code() string    { return CodeLockAcquisition }

// WaitedMs is the time spent waiting, in milliseconds.
func (e *LockAcquisitionError) WaitedMs() int64 { return e.Waited.Milliseconds() }

type kinded interface {
	Kind() ErrorKind
	Code() string
}

// KindOf classifies err, looking through wrapping.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, ErrOptimisticConflict):
		return KindOptimisticConflict
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, ErrVisitNotFound):
		return KindNotFound
	}
	return KindUnknown
}

// CodeOf returns the stable code for err, or "" for unclassified errors.
func CodeOf(err error) string {
	var k kinded
	if errors.As(err, &k) {
		return k.Code()
	}
	switch KindOf(err) {
	case KindOptimisticConflict:
		return CodeOptimisticConflict
	case KindNotFound:
		return CodeNotFound
	}
	return ""
}

// IsTransient reports whether retrying the whole operation may succeed.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindLockAcquisition, KindOptimisticConflict:
		return true
	}
	return false
}
