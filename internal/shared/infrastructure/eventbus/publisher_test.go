package eventbus

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope() Envelope {
	return Envelope{
		EventID:       uuid.New(),
		AggregateID:   uuid.New(),
		AggregateType: "booking",
		EventType:     "booking.created",
		Exchange:      ExchangeName,
		RoutingKey:    "booking_created",
		Payload:       []byte(`{"slot_id":"s1"}`),
		CorrelationID: uuid.New(),
		OccurredAt:    time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestEnvelope_Headers(t *testing.T) {
	env := testEnvelope()

	h := env.Headers()

	assert.Equal(t, env.EventID.String(), h["event_id"])
	assert.Equal(t, "booking_created", h["routing_key"])
	assert.Equal(t, env.CorrelationID.String(), h["correlation_id"])
	assert.NotContains(t, h, "causation_id")
	assert.NotContains(t, h, "user_id")
}

func TestToPublishing(t *testing.T) {
	env := testEnvelope()

	pub := toPublishing(env)

	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, env.EventID.String(), pub.MessageId)
	assert.Equal(t, env.CorrelationID.String(), pub.CorrelationId)
	assert.Equal(t, "booking.created", pub.Type)
	assert.Equal(t, env.Payload, pub.Body)
	assert.Equal(t, "booking", pub.Headers["aggregate_type"])
}

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "bookings.events.v1", nil)
	env := testEnvelope()

	require.NoError(t, p.Publish(context.Background(), env))

	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, env.AggregateID.String(), string(msg.Key))
	assert.Equal(t, env.Payload, msg.Value)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "booking_created", headers["routing_key"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Error(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w, "t", nil)

	err := p.Publish(context.Background(), testEnvelope())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher(Config{Driver: "noop"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &NoopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), testEnvelope()))

	p, err = NewPublisher(Config{Driver: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, p)
	require.NoError(t, p.Close())

	_, err = NewPublisher(Config{Driver: "kafka"}, nil)
	assert.Error(t, err)

	_, err = NewPublisher(Config{Driver: "sqs"}, nil)
	assert.Error(t, err)
}

type fakeChannel struct {
	closeOnPublish bool
	closed         bool
	published      []amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	if c.closed {
		return amqp.ErrClosed
	}
	if c.closeOnPublish {
		c.closed = true
		return amqp.ErrClosed
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeBroker hands out the scripted channels in order, failing dials while
// down is set.
type fakeBroker struct {
	channels []*fakeChannel
	conns    []*fakeConn
	dials    int
	down     bool
}

func (b *fakeBroker) dial() (amqpChannel, io.Closer, error) {
	b.dials++
	if b.down {
		return nil, nil, errors.New("connection refused")
	}
	ch := b.channels[len(b.conns)]
	conn := &fakeConn{}
	b.conns = append(b.conns, conn)
	return ch, conn, nil
}

func TestRabbitMQPublisher_RedialsAfterChannelCloses(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{channels: []*fakeChannel{{closeOnPublish: true}, {}}}
	p, err := newRabbitMQPublisher(broker.dial, nil)
	require.NoError(t, err)

	err = p.Publish(ctx, testEnvelope())
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
	assert.Equal(t, 2, broker.dials)
	assert.True(t, broker.conns[0].closed)

	env := testEnvelope()
	require.NoError(t, p.Publish(ctx, env))
	require.Len(t, broker.channels[1].published, 1)
	assert.Equal(t, env.EventID.String(), broker.channels[1].published[0].MessageId)

	require.NoError(t, p.Close())
	assert.True(t, broker.channels[1].closed)
	assert.True(t, broker.conns[1].closed)
}

func TestRabbitMQPublisher_RetriesDialOnNextPublish(t *testing.T) {
	ctx := context.Background()
	broker := &fakeBroker{channels: []*fakeChannel{{}, {}}}
	p, err := newRabbitMQPublisher(broker.dial, nil)
	require.NoError(t, err)

	// the broker drops the channel while idle and is unreachable for a while
	broker.channels[0].closed = true
	broker.down = true
	err = p.Publish(ctx, testEnvelope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	broker.down = false
	require.NoError(t, p.Publish(ctx, testEnvelope()))
	assert.Equal(t, 3, broker.dials)
	assert.Len(t, broker.channels[1].published, 1)
}

func TestNewRabbitMQPublisher_DialFailure(t *testing.T) {
	broker := &fakeBroker{down: true}

	_, err := newRabbitMQPublisher(broker.dial, nil)

	require.Error(t, err)
	assert.Equal(t, 1, broker.dials)
}
