package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"bleflow/internal/config"
)

type rabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	topic    string
	onResult ResultFunc
	inflight sync.WaitGroup
}

func newRabbitPublisher(cfg config.BusConfig, onResult ResultFunc, logger *slog.Logger) (*rabbitPublisher, error) {
	conn, ch, err := rabbitDial(cfg)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if logger != nil {
		logger.Info("rabbitmq publisher connected", "exchange", cfg.Rabbit.Exchange, "topic", cfg.Topic)
	}
	return &rabbitPublisher{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Rabbit.Exchange,
		topic:    cfg.Topic,
		onResult: onResult,
	}, nil
}

// Publish hands the payload to the broker and observes the publisher
// confirm on a separate goroutine, mirroring the asynchronous
// completion model of the kafka driver.
func (p *rabbitPublisher) Publish(ctx context.Context, key, value []byte) error {
	id := uuid.NewString()
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx, p.exchange, p.topic, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   id,
			Body:        value,
		},
	)
	if err != nil {
		return err
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		acked, err := confirm.WaitContext(ctx)
		if p.onResult == nil {
			return
		}
		res := Result{MessageID: id, Err: err}
		if err == nil && !acked {
			res.Err = fmt.Errorf("broker nacked message %s", id)
		}
		p.onResult(res)
	}()
	return nil
}

func (p *rabbitPublisher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

type rabbitConsumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func newRabbitConsumer(cfg config.BusConfig, logger *slog.Logger) (*rabbitConsumer, error) {
	conn, ch, err := rabbitDial(cfg)
	if err != nil {
		return nil, err
	}
	deliveries, err := ch.Consume(cfg.Rabbit.Queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("register consumer: %w", err)
	}
	if logger != nil {
		logger.Info("rabbitmq consumer started", "queue", cfg.Rabbit.Queue)
	}
	return &rabbitConsumer{conn: conn, channel: ch, deliveries: deliveries}, nil
}

func (c *rabbitConsumer) Fetch(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return Delivery{}, amqp.ErrClosed
		}
		id := d.MessageId
		if id == "" {
			id = fmt.Sprintf("tag-%d", d.DeliveryTag)
		}
		return Delivery{
			ID:      id,
			Payload: d.Body,
			Ack: func(context.Context) error {
				return d.Ack(false)
			},
			Nack: func(context.Context) error {
				return d.Nack(false, true)
			},
		}, nil
	}
}

func (c *rabbitConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

func rabbitDial(cfg config.BusConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

// ensureRabbitTopology declares the exchange, the queue and their
// binding. Declares are idempotent, so an existing topology is success.
func ensureRabbitTopology(cfg config.BusConfig, logger *slog.Logger) error {
	conn, ch, err := rabbitDial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Rabbit.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	queue, err := ch.QueueDeclare(cfg.Rabbit.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, cfg.Topic, cfg.Rabbit.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if logger != nil {
		logger.Info("rabbitmq topology ready", "exchange", cfg.Rabbit.Exchange, "queue", queue.Name)
	}
	return nil
}
