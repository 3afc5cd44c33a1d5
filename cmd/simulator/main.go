package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bleflow/internal/api"
	"bleflow/internal/bus"
	"bleflow/internal/config"
	"bleflow/internal/durable"
	"bleflow/internal/logging"
	"bleflow/internal/simulate"
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
	api.Start(ctx, manager, st, logger, "simulator", version)

	gen := simulate.NewGenerator(cfg.Simulator)
	ticker := time.NewTicker(cfg.Simulator.Interval)
	defer ticker.Stop()

	logger.Info("starting simulated publishing",
		"schema", cfg.Simulator.Schema,
		"stations", cfg.Simulator.Stations,
		"beacons", cfg.Simulator.Beacons,
		"interval", cfg.Simulator.Interval)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			switch cfg.Simulator.Schema {
			case "advertisement":
				ev := gen.Advertisement()
				_ = eventSink.Emit(ctx, []byte(ev.AdvAddr), ev)
			default:
				ev := gen.Telemetry()
				_ = eventSink.Emit(ctx, []byte(strconv.Itoa(ev.StationID)), ev)
			}
		}
	}

	if err := eventSink.Close(sink.DefaultDrainTimeout); err != nil {
		logger.Warn("sink close", "err", err)
	}
	logger.Info("interrupted, exiting")
}
