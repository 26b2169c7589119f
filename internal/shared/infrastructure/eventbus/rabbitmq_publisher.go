package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// ExchangeName is the topic exchange booking events are published to.
const ExchangeName = "bookings.exchange.v1"

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// amqpDialer opens a connection and a channel with the exchange declared.
type amqpDialer func() (amqpChannel, io.Closer, error)

// RabbitMQPublisher publishes events to RabbitMQ. A closed channel or
// connection is re-dialed; the publish that hit it still fails.
type RabbitMQPublisher struct {
	dial     amqpDialer
	conn     io.Closer
	channel  amqpChannel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher connects and declares the durable topic exchange.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	return newRabbitMQPublisher(func() (amqpChannel, io.Closer, error) {
		return dialRabbitMQ(url)
	}, logger)
}

func newRabbitMQPublisher(dial amqpDialer, logger *slog.Logger) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{
		dial:     dial,
		exchange: ExchangeName,
		logger:   observability.LoggerOrDefault(logger),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	p.logger.Info("RabbitMQ publisher connected", "exchange", ExchangeName)
	return p, nil
}

func dialRabbitMQ(url string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "open channel")
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "declare exchange")
	}
	return ch, conn, nil
}

// connect replaces the current session. Callers hold p.mu, except the
// constructor.
func (p *RabbitMQPublisher) connect() error {
	p.closeSession()
	ch, conn, err := p.dial()
	if err != nil {
		return err
	}
	p.channel, p.conn = ch, conn
	return nil
}

func (p *RabbitMQPublisher) closeSession() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.channel, p.conn = nil, nil
}

// Publish sends env to the exchange under its routing key.
func (p *RabbitMQPublisher) Publish(ctx context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		if err := p.connect(); err != nil {
			return errors.Wrapf(err, "publish %s: reconnect", env.RoutingKey)
		}
		p.logger.Info("RabbitMQ publisher reconnected", "exchange", p.exchange)
	}

	exchange := env.Exchange
	if exchange == "" {
		exchange = p.exchange
	}

	err := p.channel.PublishWithContext(ctx,
		exchange,       // exchange
		env.RoutingKey, // routing key
		false,          // mandatory
		false,          // immediate
		toPublishing(env),
	)
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) || p.channel.IsClosed() {
			p.logger.Warn("RabbitMQ channel closed, reconnecting", "error", err)
			if dialErr := p.connect(); dialErr != nil {
				// retried on the next publish
				p.logger.Warn("RabbitMQ reconnect failed", "error", dialErr)
			}
		}
		return errors.Wrapf(err, "publish %s", env.RoutingKey)
	}

	p.logger.DebugContext(ctx, "message published",
		"routing_key", env.RoutingKey,
		"event_id", env.EventID,
		"size", len(env.Payload),
	)
	return nil
}

func toPublishing(env Envelope) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range env.Headers() {
		headers[k] = v
	}

	pub := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID.String(),
		Timestamp:    env.OccurredAt,
		Type:         env.EventType,
		Body:         env.Payload,
	}
	if cid, ok := headers["correlation_id"].(string); ok {
		pub.CorrelationId = cid
	}
	return pub
}

// Close closes the publisher connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}
	p.channel, p.conn = nil, nil

	p.logger.Info("RabbitMQ publisher closed")
	return nil
}
