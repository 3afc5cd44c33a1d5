package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bleflow/internal/api"
	"bleflow/internal/bus"
	"bleflow/internal/config"
	"bleflow/internal/durable"
	"bleflow/internal/frame"
	"bleflow/internal/ingest"
	"bleflow/internal/logging"
	"bleflow/internal/parse"
	"bleflow/internal/sink"
	"bleflow/internal/stats"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "bleflow.yaml", "path to config file")
	writeConfig := flag.Bool("write-config", false, "write the default configuration to the config path and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.Save(config.ResolvePath(*configPath), config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "unable to write config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	manager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger, logLevel := logging.NewReloadable(cfg.LogLevel)

	if cfg.Sniffer.ObserverAddr == "" {
		logger.Error("sniffer.observer_addr is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go manager.Watch(0, func(next *config.Config) {
		logLevel.Set(logging.ParseLevel(next.LogLevel))
		logger.Info("configuration reloaded", "path", manager.Path(), "log_level", next.LogLevel)
	}, func(err error) {
		logger.Warn("unable to reload configuration", "err", err)
	}, ctx.Done())

	if err := bus.EnsureTopic(ctx, cfg.Bus, logger); err != nil {
		logger.Error("unable to ensure topic", "err", err)
		os.Exit(1)
	}

	store, err := durable.NewStore(cfg.Durable)
	if err != nil {
		logger.Error("unable to open durable log", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("unable to init durable log", "err", err)
			os.Exit(1)
		}
		logger.Info("writing events locally", "driver", cfg.Durable.Driver, "path", cfg.Durable.Path)
	} else {
		logger.Info("local persistence disabled")
	}

	st := stats.NewStore()
	eventSink, err := sink.New(cfg.Bus, store, st, logger)
	if err != nil {
		logger.Error("unable to create publish sink", "err", err)
		os.Exit(1)
	}
	api.Start(ctx, manager, st, logger, "sniffer", version)

	lines := make(chan string, cfg.Stream.ChannelBuffer)
	switch cfg.Stream.Source {
	case "stdin":
		ingest.StartReader(ctx, os.Stdin, lines, logger)
	case "file":
		ingest.StartFileTail(ctx, cfg.Stream, lines, logger)
	case "tcp":
		if err := ingest.StartTCPStream(ctx, cfg.Stream, lines, logger); err != nil {
			logger.Error("unable to start tcp stream", "err", err)
			os.Exit(1)
		}
	}

	logger.Info("starting sniffer", "interface", cfg.Sniffer.Interface, "observer_addr", cfg.Sniffer.ObserverAddr, "source", cfg.Stream.Source)
	run(ctx, cfg, lines, st, eventSink, logger)

	if err := eventSink.Close(sink.DefaultDrainTimeout); err != nil {
		logger.Warn("sink close", "err", err)
	}
	logger.Info("interrupted, exiting")
}

// run frames lines into blocks, parses them and emits advertisement
// events. A single pass per record; parse failures never stop the loop.
func run(ctx context.Context, cfg *config.Config, lines <-chan string, st *stats.Store, eventSink *sink.Sink, logger *slog.Logger) {
	framer := frame.New(cfg.Stream.FlushTrailing)
	parser := parse.New(cfg.Sniffer.ObserverAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				if block, emitted := framer.Flush(); emitted {
					handleBlock(ctx, block, parser, st, eventSink, logger)
				}
				return
			}
			st.Inc(stats.Lines)
			if block, emitted := framer.Push(line); emitted {
				handleBlock(ctx, block, parser, st, eventSink, logger)
			}
		}
	}
}

func handleBlock(ctx context.Context, block frame.Block, parser *parse.Parser, st *stats.Store, eventSink *sink.Sink, logger *slog.Logger) {
	st.Inc(stats.Blocks)
	outcome := parser.Parse(block)
	switch outcome.Kind {
	case parse.KindEvent:
		st.Inc(stats.Events)
		_ = eventSink.Emit(ctx, []byte(outcome.Event.AdvAddr), outcome.Event)
	case parse.KindSkipped:
		st.Inc(stats.Skipped)
	case parse.KindMalformed:
		st.Inc(stats.Malformed)
		logger.Warn("unable to parse block", "err", outcome.Err, "block", block.Text())
	}
}
