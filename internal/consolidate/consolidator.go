package consolidate

import (
	"context"
	"fmt"
	"log/slog"

	"bleflow/internal/kv"
	"bleflow/internal/model"
	"bleflow/internal/stats"
)

// Consolidator merges delivered events into the key-value backend with
// last-write-wins resolution on the embedded event time.
type Consolidator struct {
	backend kv.Backend
	stats   *stats.Store
	logger  *slog.Logger
}

func New(backend kv.Backend, st *stats.Store, logger *slog.Logger) *Consolidator {
	return &Consolidator{backend: backend, stats: st, logger: logger}
}

// Apply upserts the payload under every derived key. A returned error
// is retryable (backend trouble) and the caller must leave the message
// unacknowledged. Payloads with no derivable keys or no extractable
// event time cannot be fixed by redelivery; they are logged, counted
// and dropped with a nil return so the message gets acknowledged.
func (c *Consolidator) Apply(ctx context.Context, payload []byte) error {
	keys, err := DeriveKeys(payload)
	if err != nil {
		c.stats.Inc(stats.Malformed)
		if c.logger != nil {
			c.logger.Warn("undeliverable payload", "err", err, "payload", string(payload))
		}
		return nil
	}
	eventTime, ok := model.EventTime(payload)
	if !ok {
		c.stats.Inc(stats.Malformed)
		if c.logger != nil {
			c.logger.Warn("payload has no event time", "payload", string(payload))
		}
		return nil
	}
	for _, key := range keys {
		written, err := c.backend.Upsert(ctx, key, payload, eventTime)
		if err != nil {
			c.stats.Inc(stats.UpsertFailed)
			if c.logger != nil {
				c.logger.Warn("unable to upsert", "key", key, "err", err)
			}
			return fmt.Errorf("upsert %s: %w", key, err)
		}
		if written {
			c.stats.Inc(stats.Upserts)
			if c.logger != nil {
				c.logger.Info("updated key", "key", key)
			}
		} else {
			// Expected steady state under out-of-order delivery.
			c.stats.Inc(stats.StaleDrops)
			if c.logger != nil {
				c.logger.Info("received older value", "key", key)
			}
		}
	}
	return nil
}
