package bus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"bleflow/internal/config"
)

type kafkaPublisher struct {
	writer *kafka.Writer
}

func newKafkaPublisher(cfg config.BusConfig, onResult ResultFunc) *kafkaPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},

		BatchTimeout: 5 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
	}
	if onResult != nil {
		writer.Completion = func(messages []kafka.Message, err error) {
			for _, m := range messages {
				res := Result{Err: err}
				if err == nil {
					res.MessageID = fmt.Sprintf("%d-%d", m.Partition, m.Offset)
				}
				onResult(res)
			}
		}
	}
	return &kafkaPublisher{writer: writer}
}

func (p *kafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close flushes pending async batches; kafka-go blocks until every
// in-flight message has completed.
func (p *kafkaPublisher) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- p.writer.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type kafkaConsumer struct {
	reader *kafka.Reader
}

func newKafkaConsumer(cfg config.BusConfig) *kafkaConsumer {
	return &kafkaConsumer{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})}
}

func (c *kafkaConsumer) Fetch(ctx context.Context) (Delivery, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{
		ID:      fmt.Sprintf("%d-%d", m.Partition, m.Offset),
		Payload: m.Value,
		Ack: func(ctx context.Context) error {
			return c.reader.CommitMessages(ctx, m)
		},
		// An uncommitted offset is redelivered on restart or
		// rebalance; nothing to do here. Workers commit offsets
		// independently, so a later commit on the same partition
		// also covers this one and the redelivery is best effort.
		// The rabbitmq driver requeues per message.
		Nack: func(ctx context.Context) error { return nil },
	}, nil
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}

func ensureKafkaTopic(ctx context.Context, cfg config.BusConfig, logger *slog.Logger) error {
	bootstrap := cfg.Kafka.Brokers[0]
	conn, err := kafka.DialContext(ctx, "tcp", bootstrap)
	if err != nil {
		return err
	}
	defer conn.Close()

	if parts, err := conn.ReadPartitions(cfg.Topic); err == nil && len(parts) > 0 {
		if logger != nil {
			logger.Info("topic already exists", "topic", cfg.Topic)
		}
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     cfg.Kafka.Partitions,
		ReplicationFactor: cfg.Kafka.ReplicationFactor,
	})
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("created topic", "topic", cfg.Topic, "partitions", cfg.Kafka.Partitions)
	}
	return nil
}
