package sink

import (
	"context"
	"log/slog"
	"time"

	"bleflow/internal/bus"
	"bleflow/internal/config"
	"bleflow/internal/durable"
	"bleflow/internal/stats"
)

// Event is anything the sink can serialize onto the wire.
type Event interface {
	Encode() ([]byte, error)
}

// DefaultDrainTimeout bounds how long Close waits for outstanding
// publish confirmations.
const DefaultDrainTimeout = 5 * time.Second

// Sink serializes events, appends them to the durable log when one is
// configured, and publishes them to the bus. Publishing completes
// asynchronously; completions are logged and counted as they arrive.
type Sink struct {
	publisher bus.Publisher
	store     durable.Store
	stats     *stats.Store
	logger    *slog.Logger
}

func New(busCfg config.BusConfig, store durable.Store, st *stats.Store, logger *slog.Logger) (*Sink, error) {
	s := &Sink{store: store, stats: st, logger: logger}
	publisher, err := bus.NewPublisher(busCfg, s.onResult, logger)
	if err != nil {
		return nil, err
	}
	s.publisher = publisher
	return s, nil
}

// NewWithPublisher wires an existing publisher; completions must be
// routed to OnResult by the caller. Used by tests.
func NewWithPublisher(publisher bus.Publisher, store durable.Store, st *stats.Store, logger *slog.Logger) *Sink {
	return &Sink{publisher: publisher, store: store, stats: st, logger: logger}
}

// Emit serializes and publishes one event. A nil event is a no-op. A
// durable-log failure is logged but does not block the publish; the
// publish itself is fire-and-forget with the completion observed later.
func (s *Sink) Emit(ctx context.Context, key []byte, ev Event) error {
	if ev == nil {
		return nil
	}
	payload, err := ev.Encode()
	if err != nil {
		s.stats.Inc(stats.PublishFailed)
		if s.logger != nil {
			s.logger.Warn("unable to serialize event", "err", err)
		}
		return err
	}
	if s.store != nil {
		if err := s.store.Append(ctx, payload); err != nil {
			s.stats.Inc(stats.DurableFailed)
			if s.logger != nil {
				s.logger.Warn("durable log append failed", "err", err)
			}
		}
	}
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		s.stats.Inc(stats.PublishFailed)
		if s.logger != nil {
			s.logger.Warn("unable to publish message", "err", err)
		}
		return err
	}
	return nil
}

// OnResult records one publish completion.
func (s *Sink) OnResult(res bus.Result) {
	s.onResult(res)
}

func (s *Sink) onResult(res bus.Result) {
	if res.Err != nil {
		s.stats.Inc(stats.PublishFailed)
		if s.logger != nil {
			s.logger.Warn("unable to publish message", "err", res.Err)
		}
		return
	}
	s.stats.Inc(stats.Published)
	if s.logger != nil {
		s.logger.Info("published message", "message_id", res.MessageID)
	}
}

// Close drains in-flight publishes within the timeout, then closes the
// durable log. File handles are closed, not abandoned.
func (s *Sink) Close(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := s.publisher.Close(ctx)
	if s.store != nil {
		if cerr := s.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
