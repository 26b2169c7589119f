package eventbus

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/felixgeelhaar/reservo/pkg/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by aggregate id so that a
// booking's events stay in one partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, logger: observability.LoggerOrDefault(logger)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(env)); err != nil {
		return errors.Wrapf(err, "write %s to %s", env.RoutingKey, p.topic)
	}
	p.logger.DebugContext(ctx, "message published",
		"topic", p.topic,
		"routing_key", env.RoutingKey,
		"event_id", env.EventID,
	)
	return nil
}

func toKafkaMessage(env Envelope) kafka.Message {
	headers := env.Headers()
	msg := kafka.Message{
		Key:     []byte(env.AggregateID.String()),
		Value:   env.Payload,
		Time:    env.OccurredAt,
		Headers: make([]kafka.Header, 0, len(headers)),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
