package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"bleflow/internal/config"
)

// StartFileTail tails each configured file into out, reopening on
// truncation or rotation. out is closed once every tail has stopped.
func StartFileTail(ctx context.Context, cfg config.StreamConfig, out chan<- string, logger *slog.Logger) {
	var wg sync.WaitGroup
	for _, path := range cfg.Files {
		path := path
		if logger != nil {
			logger.Info("tailing file", "path", path, "start_at_end", cfg.StartAtEnd)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			tailFile(ctx, path, cfg.StartAtEnd, out, logger)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
}

func tailFile(ctx context.Context, path string, startAtEnd bool, out chan<- string, logger *slog.Logger) {
	var file *os.File
	var offset int64
	for {
		select {
		case <-ctx.Done():
			if file != nil {
				_ = file.Close()
			}
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			if startAtEnd {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
			}
		}

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						_ = file.Close()
						file = nil
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			offset += int64(len(line))
			SendNonBlocking(ctx, out, trimNewline(line), logger)
		}
	}
}

func trimNewline(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
