package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bleflow/internal/api"
	"bleflow/internal/bus"
	"bleflow/internal/config"
	"bleflow/internal/consolidate"
	"bleflow/internal/kv"
	"bleflow/internal/logging"
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

	backend, err := kv.NewBackend(cfg.Consolidate)
	if err != nil {
		logger.Error("unable to connect to backend", "backend", cfg.Consolidate.Backend, "err", err)
		os.Exit(1)
	}

	consumer, err := bus.NewConsumer(cfg.Bus, logger)
	if err != nil {
		logger.Error("unable to create consumer", "err", err)
		backend.Close()
		os.Exit(1)
	}

	st := stats.NewStore()
	api.Start(ctx, manager, st, logger, "consolidator", version)

	logger.Info("starting consolidation",
		"backend", cfg.Consolidate.Backend,
		"workers", cfg.Consolidate.Workers,
		"topic", cfg.Bus.Topic)

	consolidator := consolidate.New(backend, st, logger)
	consolidate.Run(ctx, consumer, consolidator, cfg.Consolidate.Workers, st, logger)

	if err := consumer.Close(); err != nil {
		logger.Warn("consumer close", "err", err)
	}
	if err := backend.Close(); err != nil {
		logger.Warn("backend close", "err", err)
	}
	logger.Info("interrupted, exiting")
}
