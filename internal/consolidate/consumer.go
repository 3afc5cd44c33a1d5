package consolidate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bleflow/internal/bus"
	"bleflow/internal/stats"
)

// Run fetches deliveries and fans them out to workers. Each message is
// acknowledged only after every derived-key upsert succeeded; a failed
// message is left for bus redelivery. Run returns once the context is
// cancelled and the workers have drained.
func Run(ctx context.Context, consumer bus.Consumer, cons *Consolidator, workers int, st *stats.Store, logger *slog.Logger) {
	if workers <= 0 {
		workers = 1
	}
	msgCh := make(chan bus.Delivery, workers*16)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for d := range msgCh {
				st.Inc(stats.Consumed)
				if logger != nil {
					logger.Info("processing message", "message_id", d.ID)
				}
				if err := cons.Apply(ctx, d.Payload); err != nil {
					if logger != nil {
						logger.Warn("consolidation failed, message left for redelivery", "message_id", d.ID, "err", err)
					}
					_ = d.Nack(context.Background())
					continue
				}
				if err := d.Ack(context.Background()); err != nil {
					st.Inc(stats.AckFailed)
					if logger != nil {
						logger.Warn("unable to acknowledge message", "message_id", d.ID, "err", err)
					}
					continue
				}
				if logger != nil {
					logger.Info("acknowledged message", "message_id", d.ID)
				}
			}
		}()
	}

	for {
		d, err := consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if logger != nil {
				logger.Warn("fetch error", "err", err)
			}
			if !sleepCtx(ctx, 500*time.Millisecond) {
				break
			}
			continue
		}
		select {
		case msgCh <- d:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(msgCh)
	wg.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
