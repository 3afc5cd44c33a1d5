package bus

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bleflow/internal/config"
)

// Result is the completion of one asynchronous publish.
type Result struct {
	MessageID string
	Err       error
}

// ResultFunc observes publish completions. It may be called from the
// driver's own goroutines.
type ResultFunc func(Result)

// Publisher submits payloads to the bus. Publish returns once the
// message is handed to the driver; delivery is confirmed through the
// ResultFunc registered at construction. Close drains in-flight
// publishes within the bounds of its context.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close(ctx context.Context) error
}

// Delivery is one consumed message. Ack confirms processing; a message
// never acked is redelivered by the bus.
type Delivery struct {
	ID      string
	Payload []byte
	Ack     func(ctx context.Context) error
	Nack    func(ctx context.Context) error
}

type Consumer interface {
	Fetch(ctx context.Context) (Delivery, error)
	Close() error
}

func NewPublisher(cfg config.BusConfig, onResult ResultFunc, logger *slog.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Driver) {
	case "kafka":
		return newKafkaPublisher(cfg, onResult), nil
	case "rabbitmq":
		return newRabbitPublisher(cfg, onResult, logger)
	default:
		return nil, errors.New("unsupported bus driver")
	}
}

func NewConsumer(cfg config.BusConfig, logger *slog.Logger) (Consumer, error) {
	switch strings.ToLower(cfg.Driver) {
	case "kafka":
		return newKafkaConsumer(cfg), nil
	case "rabbitmq":
		return newRabbitConsumer(cfg, logger)
	default:
		return nil, errors.New("unsupported bus driver")
	}
}

// EnsureTopic makes sure the topic (or exchange and queue) exists
// before the first publish. An already existing topic is success.
func EnsureTopic(ctx context.Context, cfg config.BusConfig, logger *slog.Logger) error {
	switch strings.ToLower(cfg.Driver) {
	case "kafka":
		return ensureKafkaTopic(ctx, cfg, logger)
	case "rabbitmq":
		return ensureRabbitTopology(cfg, logger)
	default:
		return errors.New("unsupported bus driver")
	}
}
