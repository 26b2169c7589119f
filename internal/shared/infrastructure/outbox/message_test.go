package outbox_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/shared/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
)

var epoch = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// testEvent is a concrete implementation of DomainEvent for testing.
type testEvent struct {
	domain.BaseEvent
	Data string `json:"data"`
}

func newTestEvent(aggregateID uuid.UUID, data string) *testEvent {
	return &testEvent{
		BaseEvent: domain.NewBaseEvent(aggregateID, "booking", "booking.created", epoch),
		Data:      data,
	}
}

func newTestMessage(t *testing.T) *outbox.Message {
	t.Helper()
	msg, err := outbox.NewMessage(newTestEvent(uuid.New(), "payload"), 0)
	require.NoError(t, err)
	return msg
}

func TestNewMessage(t *testing.T) {
	aggregateID := uuid.New()
	event := newTestEvent(aggregateID, "test data")
	meta := domain.EventMetadata{CorrelationID: uuid.New(), UserID: uuid.New()}
	event.SetMetadata(meta)

	msg, err := outbox.NewMessage(event, 3)

	require.NoError(t, err)
	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, aggregateID, msg.AggregateID)
	assert.Equal(t, "booking", msg.AggregateType)
	assert.Equal(t, "booking.created", msg.EventType)
	assert.Equal(t, epoch, msg.CreatedAt)
	assert.Equal(t, meta.CorrelationID, msg.CorrelationID)
	assert.Equal(t, uuid.Nil, msg.CausationID)
	assert.Equal(t, meta.UserID, msg.UserID)
	assert.Equal(t, 3, msg.MaxRetries)
	assert.Zero(t, msg.ID)
	assert.Zero(t, msg.RetryCount)
	assert.False(t, msg.IsPublished())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, map[string]any{"data": "test data"}, payload)
}

func TestNewMessage_DefaultMaxRetries(t *testing.T) {
	assert.Equal(t, outbox.DefaultMaxRetries, newTestMessage(t).MaxRetries)
}

func TestRetryDelay(t *testing.T) {
	tests := map[int]time.Duration{
		-1: time.Second,
		0:  time.Second,
		1:  2 * time.Second,
		2:  4 * time.Second,
		3:  8 * time.Second,
		8:  256 * time.Second,
		9:  300 * time.Second,
		40: 300 * time.Second,
	}
	for n, want := range tests {
		assert.Equal(t, want, outbox.RetryDelay(n), "retry count %d", n)
	}
}

func TestMessage_IsEligible(t *testing.T) {
	lastRetry := epoch

	tests := []struct {
		name string
		msg  outbox.Message
		now  time.Time
		want bool
	}{
		{"never attempted", outbox.Message{MaxRetries: 5}, epoch, true},
		{"inside first backoff", outbox.Message{MaxRetries: 5, RetryCount: 1, LastRetryAt: &lastRetry}, epoch.Add(1999 * time.Millisecond), false},
		{"first backoff elapsed", outbox.Message{MaxRetries: 5, RetryCount: 1, LastRetryAt: &lastRetry}, epoch.Add(2 * time.Second), true},
		{"inside second backoff", outbox.Message{MaxRetries: 5, RetryCount: 2, LastRetryAt: &lastRetry}, epoch.Add(3 * time.Second), false},
		{"second backoff elapsed", outbox.Message{MaxRetries: 5, RetryCount: 2, LastRetryAt: &lastRetry}, epoch.Add(4 * time.Second), true},
		{"retried without timestamp", outbox.Message{MaxRetries: 5, RetryCount: 1}, epoch, true},
		{"exhausted", outbox.Message{MaxRetries: 5, RetryCount: 5, LastRetryAt: &lastRetry}, epoch.Add(time.Hour), false},
		{"published", outbox.Message{MaxRetries: 5, PublishedAt: &lastRetry}, epoch, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.IsEligible(tt.now))
		})
	}
}

func TestMessage_NextAttemptAt(t *testing.T) {
	lastRetry := epoch
	msg := outbox.Message{MaxRetries: 5, RetryCount: 3, LastRetryAt: &lastRetry}

	next := msg.NextAttemptAt()

	require.NotNil(t, next)
	assert.Equal(t, epoch.Add(8*time.Second), *next)
	assert.Nil(t, (&outbox.Message{MaxRetries: 5}).NextAttemptAt())
}

func TestRoutingKeyFor(t *testing.T) {
	assert.Equal(t, "booking_created", outbox.RoutingKeyFor("booking.created"))
	assert.Equal(t, "booking_payment_status_updated", outbox.RoutingKeyFor("Booking.Payment_Status_Updated"))
}

func TestMessage_Envelope(t *testing.T) {
	msg := newTestMessage(t)
	msg.CorrelationID = uuid.New()

	env := msg.Envelope()

	assert.Equal(t, eventbus.ExchangeName, env.Exchange)
	assert.Equal(t, "booking_created", env.RoutingKey)
	assert.Equal(t, msg.EventID, env.EventID)
	assert.Equal(t, msg.CorrelationID, env.CorrelationID)
	assert.Equal(t, []byte(msg.Payload), env.Payload)
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", outbox.TruncateError("short"))

	long := strings.Repeat("x", 600)
	assert.Len(t, outbox.TruncateError(long), outbox.MaxErrorLength)

	// a two-byte rune straddling the limit is dropped whole
	multi := strings.Repeat("x", outbox.MaxErrorLength-1) + "é" + "tail"
	got := outbox.TruncateError(multi)
	assert.Len(t, got, outbox.MaxErrorLength-1)
	assert.True(t, strings.HasPrefix(multi, got))
}
