package ingest

import (
	"context"
	"log/slog"
	"time"
)

// SendNonBlocking hands a raw line to the framer channel without ever
// blocking a source; a full channel drops the line with a warning.
func SendNonBlocking(ctx context.Context, out chan<- string, line string, logger *slog.Logger) bool {
	select {
	case out <- line:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("line channel full, dropping line")
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
