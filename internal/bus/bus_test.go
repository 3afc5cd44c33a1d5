package bus

import (
	"context"
	"testing"

	"bleflow/internal/config"
)

func kafkaCfg() config.BusConfig {
	return config.BusConfig{
		Driver: "kafka",
		Topic:  "ble-events",
		Kafka: config.KafkaConfig{
			Brokers: []string{"localhost:9092"},
			GroupID: "bleflow-consolidator",
		},
	}
}

func TestNewPublisherSelectsKafka(t *testing.T) {
	p, err := NewPublisher(kafkaCfg(), nil, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if _, ok := p.(*kafkaPublisher); !ok {
		t.Fatalf("publisher type: %T", p)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewPublisherDriverCaseInsensitive(t *testing.T) {
	cfg := kafkaCfg()
	cfg.Driver = "KAFKA"
	p, err := NewPublisher(cfg, nil, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	_ = p.Close(context.Background())
}

func TestNewConsumerSelectsKafka(t *testing.T) {
	c, err := NewConsumer(kafkaCfg(), nil)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if _, ok := c.(*kafkaConsumer); !ok {
		t.Fatalf("consumer type: %T", c)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestUnsupportedDriverRejected(t *testing.T) {
	cfg := kafkaCfg()
	cfg.Driver = "nats"
	if _, err := NewPublisher(cfg, nil, nil); err == nil {
		t.Fatalf("publisher: expected unsupported driver error")
	}
	if _, err := NewConsumer(cfg, nil); err == nil {
		t.Fatalf("consumer: expected unsupported driver error")
	}
	if err := EnsureTopic(context.Background(), cfg, nil); err == nil {
		t.Fatalf("ensure topic: expected unsupported driver error")
	}
}
