package eventbus

import (
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
)

// Config selects and configures a publisher.
type Config struct {
	Driver       string // rabbitmq, kafka or noop
	RabbitMQURL  string
	KafkaBrokers []string
	KafkaTopic   string
}

// NewPublisher builds the publisher named by cfg.Driver.
func NewPublisher(cfg Config, logger *slog.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "noop":
		return NewNoopPublisher(logger), nil
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("kafka publisher needs at least one broker")
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	}
	return nil, errors.Newf("unknown event bus driver %q", cfg.Driver)
}
