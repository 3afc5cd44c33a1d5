package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
)

// StartReader streams lines from r into out and closes out when the
// stream ends. This is the stdin path of the sniffer, where the monitor
// tool is piped straight into the process.
func StartReader(ctx context.Context, r io.Reader, out chan<- string, logger *slog.Logger) {
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && logger != nil {
			logger.Warn("input stream read error", "err", err)
		}
	}()
}
