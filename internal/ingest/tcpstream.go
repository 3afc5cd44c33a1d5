package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"bleflow/internal/config"
)

// StartTCPStream accepts connections and streams their lines into out.
// The listener closes on context cancellation. out is never closed here
// since handler goroutines may outlive the accept loop; the consumer
// stops on its context instead.
func StartTCPStream(ctx context.Context, cfg config.StreamConfig, out chan<- string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("tcp stream listening", "addr", cfg.TCPAddr)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleStreamConn(ctx, conn, out, logger)
		}
	}()
	return nil
}

func handleStreamConn(ctx context.Context, conn net.Conn, out chan<- string, logger *slog.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		SendNonBlocking(ctx, out, scanner.Text(), logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp stream scanner error", "err", err)
	}
}
