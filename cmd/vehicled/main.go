package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/vehicled/internal/broker"
	"codeberg.org/mutker/vehicled/internal/config"
	"codeberg.org/mutker/vehicled/internal/discovery"
	"codeberg.org/mutker/vehicled/internal/feed"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/mirror"
	"codeberg.org/mutker/vehicled/internal/pid"
	"codeberg.org/mutker/vehicled/internal/server"
	"codeberg.org/mutker/vehicled/internal/sim"
	"codeberg.org/mutker/vehicled/internal/store"
	"codeberg.org/mutker/vehicled/internal/telemetry"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 5 * time.Second
	// hydrateLimit bounds how much persisted history is replayed into the
	// in-memory windows on startup. Matches the store's own history cap.
	hydrateLimit = 300
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	config.ApplyLogLevel(cfg.LogLevel)
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}

	err := run()

	if removeErr := pid.Remove(); removeErr != nil {
		logger.Error().Err(removeErr).Msg("Failed to remove PID file")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Daemon failed")
	}
}

// daemon holds everything run wires up, so cleanup can walk it in reverse.
type daemon struct {
	collector telemetry.Collector
	publisher *broker.Publisher
	mirror    *mirror.Mirror
	store     *store.Store
	engine    *sim.Engine
	server    *server.Server
	feed      *feed.Listener
	discovery *discovery.Service
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	d, err := build(ctx)
	if err != nil {
		return err
	}

	if cfg.Simulator.AutoStart {
		d.engine.Start(vehicle.ParseVariant(cfg.Simulator.Variant))
	}

	logger.Info().
		Str("version", version).
		Str("listen", cfg.Server.Listen).
		Msg("vehicled is up")

	<-ctx.Done()

	cleanup(d)

	return nil
}

func build(ctx context.Context) (*daemon, error) {
	d := &daemon{}

	collector, err := telemetry.NewCollector(telemetry.Config{
		Enabled:       cfg.Telemetry.Enabled,
		Driver:        cfg.Telemetry.Driver,
		DBPath:        cfg.Telemetry.Database,
		DSN:           cfg.Telemetry.DSN,
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval,
	})
	if err != nil {
		return nil, err
	}
	d.collector = collector

	sinks := []store.Sink{collector}

	if cfg.Broker.Enabled {
		publisher, err := broker.New(cfg.Broker)
		if err != nil {
			return nil, err
		}
		d.publisher = publisher
		sinks = append(sinks, publisher)
	}

	if cfg.Mirror.Enabled {
		d.mirror = mirror.New(cfg.Mirror)
		sinks = append(sinks, d.mirror)
	}

	d.store = store.New(sinks...)

	history, err := collector.LoadHistory(ctx, hydrateLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not replay persisted history")
	} else {
		d.store.Hydrate(history)
	}

	d.engine = sim.New(d.store, nil, time.Duration(cfg.Simulator.Interval)*time.Second)

	d.server = server.New(cfg.Server, d.store, d.engine, version)
	if err := d.server.Start(); err != nil {
		return nil, err
	}

	if cfg.Feed.Enabled {
		d.feed = feed.New(cfg.Feed, d.store)
		if err := d.feed.Start(); err != nil {
			return nil, err
		}
	}

	if cfg.Server.Advertise {
		disc, err := discovery.Advertise(cfg.Server.Listen, version)
		if err != nil {
			logger.Warn().Err(err).Msg("mDNS advertisement failed, continuing without")
		} else {
			d.discovery = disc
		}
	}

	return d, nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// cleanup stops producers before closing the sinks they write to.
func cleanup(d *daemon) {
	d.engine.Stop()

	if d.discovery != nil {
		d.discovery.Shutdown()
	}
	if d.feed != nil {
		d.feed.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := d.collector.Close(); err != nil {
		logger.Error().Err(err).Msg("Telemetry storage close failed")
	}
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.mirror != nil {
		if err := d.mirror.Close(); err != nil {
			logger.Error().Err(err).Msg("Redis mirror close failed")
		}
	}

	logger.Info().Msg("Exiting...")
}
