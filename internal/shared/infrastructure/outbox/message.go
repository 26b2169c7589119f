package outbox

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/shared/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/eventbus"
)

const (
	// DefaultMaxRetries is the number of failed publishes after which an
	// event is exhausted.
	DefaultMaxRetries = 5
	// MaxRetryDelay caps the exponential backoff.
	MaxRetryDelay = 300 * time.Second
	// MaxErrorLength is how much of a publish error is kept on the row.
	MaxErrorLength = 500
)

// Message is one row of the outbox.
type Message struct {
	ID            int64 // insertion order
	EventID       uuid.UUID
	AggregateID   uuid.UUID
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	UserID        uuid.UUID
	CreatedAt     time.Time
	PublishedAt   *time.Time
	RetryCount    int
	MaxRetries    int
	LastError     string
	LastRetryAt   *time.Time
}

// NewMessage serializes a domain event into an unpublished message.
func NewMessage(event domain.DomainEvent, maxRetries int) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s", event.EventType())
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	meta := event.Metadata()
	return &Message{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.EventType(),
		Payload:       payload,
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		UserID:        meta.UserID,
		CreatedAt:     event.OccurredAt().UTC(),
		MaxRetries:    maxRetries,
	}, nil
}

// NewMessages converts a batch of events.
func NewMessages(events []domain.DomainEvent, maxRetries int) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		msg, err := NewMessage(event, maxRetries)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// RetryDelay is the backoff of a row that has failed retryCount times:
// min(2^retryCount, 300) seconds.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 8 {
		return MaxRetryDelay
	}
	return min(time.Duration(1<<retryCount)*time.Second, MaxRetryDelay)
}

// IsPublished returns true if the message has been published.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// IsExhausted reports whether the message used up its retries without being
// published. Exhausted messages are never claimed again.
func (m *Message) IsExhausted() bool {
	return !m.IsPublished() && m.RetryCount >= m.MaxRetries
}

// IsEligible is the claim predicate: unpublished, not exhausted, and either
// never attempted or past its backoff window.
func (m *Message) IsEligible(now time.Time) bool {
	if m.IsPublished() || m.IsExhausted() {
		return false
	}
	if m.RetryCount == 0 || m.LastRetryAt == nil {
		return true
	}
	return !m.LastRetryAt.Add(RetryDelay(m.RetryCount)).After(now)
}

// NextAttemptAt is when the message becomes eligible again, or nil when it
// already is or never will be.
func (m *Message) NextAttemptAt() *time.Time {
	if m.IsPublished() || m.IsExhausted() || m.RetryCount == 0 || m.LastRetryAt == nil {
		return nil
	}
	t := m.LastRetryAt.Add(RetryDelay(m.RetryCount))
	return &t
}

// RoutingKey derives the broker routing key from the event type:
// "booking.created" becomes "booking_created".
func (m *Message) RoutingKey() string {
	return RoutingKeyFor(m.EventType)
}

// RoutingKeyFor is RoutingKey for a bare event type.
func RoutingKeyFor(eventType string) string {
	return strings.ReplaceAll(strings.ToLower(eventType), ".", "_")
}

// Envelope converts m for a Publisher.
func (m *Message) Envelope() eventbus.Envelope {
	return eventbus.Envelope{
		EventID:       m.EventID,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		EventType:     m.EventType,
		Exchange:      eventbus.ExchangeName,
		RoutingKey:    m.RoutingKey(),
		Payload:       m.Payload,
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		OccurredAt:    m.CreatedAt,
	}
}

// TruncateError trims a publish error to MaxErrorLength bytes without
// splitting a UTF-8 sequence.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLength {
		return msg
	}
	cut := MaxErrorLength
	for cut > 0 && !utf8RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
