package domain

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// ActiveStatuses hold their slot. At most one booking per slot may be in one
// of them.
var ActiveStatuses = []Status{StatusCreated, StatusConfirmed}

func (s Status) String() string { return string(s) }

// IsActive reports whether a booking in s holds its slot.
func (s Status) IsActive() bool {
	return s == StatusCreated || s == StatusConfirmed
}

// IsTerminal reports whether no lifecycle trigger leaves s.
func (s Status) IsTerminal() bool {
	for key := range statusTransitions {
		if key.from == s {
			return false
		}
	}
	return true
}

// ParseStatus converts a stored value.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusCreated, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return s, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown value " + v}
}

// Trigger is a lifecycle event applied to a booking.
type Trigger string

const (
	TriggerConfirm  Trigger = "confirm"
	TriggerCancel   Trigger = "cancel"
	TriggerComplete Trigger = "complete"
	TriggerNoShow   Trigger = "no_show"
)

type statusEdge struct {
	from    Status
	trigger Trigger
}

// statusTransitions is the whole booking state machine. Anything not listed is
// an InvalidTransitionError.
var statusTransitions = map[statusEdge]Status{
	{StatusCreated, TriggerConfirm}:    StatusConfirmed,
	{StatusCreated, TriggerCancel}:     StatusCancelled,
	{StatusConfirmed, TriggerComplete}: StatusCompleted,
	{StatusConfirmed, TriggerCancel}:   StatusCancelled,
	{StatusConfirmed, TriggerNoShow}:   StatusNoShow,
}

// NextStatus looks up the target of trigger from s.
func NextStatus(from Status, trigger Trigger) (Status, error) {
	to, ok := statusTransitions[statusEdge{from, trigger}]
	if !ok {
		return "", &InvalidTransitionError{Subject: "booking", From: string(from), Trigger: string(trigger)}
	}
	return to, nil
}

// PaymentStatus tracks the booking's payment independently of its lifecycle.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

func (p PaymentStatus) String() string { return string(p) }

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:  {PaymentPending, PaymentPaid, PaymentFailed},
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentFailed:  {PaymentPending, PaymentPaid},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransitionTo reports whether the payment may move from p to next.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts a stored value.
func ParsePaymentStatus(v string) (PaymentStatus, error) {
	switch p := PaymentStatus(v); p {
	case PaymentUnpaid, PaymentPending, PaymentPaid, PaymentRefunded, PaymentFailed:
		return p, nil
	}
	return "", &ValidationError{Field: "payment_status", Reason: "unknown value " + v}
}

// Source is the channel a booking came from.
type Source string

const (
	SourceTelegram Source = "telegram"
	SourceWeb      Source = "web"
	SourceAPI      Source = "api"
	SourceAdmin    Source = "admin"
	SourceImport   Source = "import"
)

// ParseSource converts a stored or user-supplied value. Empty means api.
func ParseSource(v string) (Source, error) {
	switch s := Source(v); s {
	case "":
		return SourceAPI, nil
	case SourceTelegram, SourceWeb, SourceAPI, SourceAdmin, SourceImport:
		return s, nil
	}
	return "", &ValidationError{Field: "source", Reason: "unknown value " + v}
}
