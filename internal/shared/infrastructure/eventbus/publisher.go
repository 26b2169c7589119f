package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// Envelope is one outbox event on its way to the broker.
type Envelope struct {
	EventID       uuid.UUID
	AggregateID   uuid.UUID
	AggregateType string
	EventType     string
	Exchange      string
	RoutingKey    string
	Payload       []byte
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	UserID        uuid.UUID
	OccurredAt    time.Time
}

// Publisher hands events to a message broker. A nil error means the broker
// accepted the event.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error

	// Close releases the broker connection.
	Close() error
}

// Headers returns the tracing headers carried next to the payload.
func (e Envelope) Headers() map[string]string {
	h := map[string]string{
		"event_id":       e.EventID.String(),
		"event_type":     e.EventType,
		"aggregate_id":   e.AggregateID.String(),
		"aggregate_type": e.AggregateType,
		"routing_key":    e.RoutingKey,
	}
	for name, id := range map[string]uuid.UUID{
		"correlation_id": e.CorrelationID,
		"causation_id":   e.CausationID,
		"user_id":        e.UserID,
	} {
		if id != uuid.Nil {
			h[name] = id.String()
		}
	}
	return h
}

// NoopPublisher is a no-op publisher for development.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that accepts and drops everything.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{logger: observability.LoggerOrDefault(logger)}
}

// Publish logs the event but doesn't actually publish.
func (p *NoopPublisher) Publish(ctx context.Context, env Envelope) error {
	p.logger.DebugContext(ctx, "noop publish",
		"event_id", env.EventID,
		"routing_key", env.RoutingKey,
		"size", len(env.Payload),
	)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}
