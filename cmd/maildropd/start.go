package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maildropd/maildropd/internal/config"
	"github.com/maildropd/maildropd/internal/destination"
	"github.com/maildropd/maildropd/internal/filter"
	"github.com/maildropd/maildropd/internal/intake"
	"github.com/maildropd/maildropd/internal/lifecycle"
	"github.com/maildropd/maildropd/internal/logging"
	"github.com/maildropd/maildropd/internal/metrics"
)

// buildDestinations constructs and probes the configured destinations.
// Probing happens here, before any runtime artifact exists, so a bad
// account set fails the start outright: no socket is bound, no PID
// marker is written and status still reports not running.
func buildDestinations(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]destination.Destination, error) {
	dests, err := destination.Build(cfg.Destinations, cfg.User)
	if err != nil {
		return nil, err
	}
	if lifecycle.Daemonized() {
		// The parent probed the set just before re-exec; a second
		// round of remote sessions here would be pure noise.
		return dests, nil
	}
	if err := destination.ValidateAll(ctx, dests, logger); err != nil {
		return nil, err
	}
	return dests, nil
}

func runStart() {
	flags := config.ParseFlags()

	cfg, warnings, err := config.LoadWithFlags(flags, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogConsole)
	for _, w := range warnings {
		logger.Warn(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	dests, err := buildDestinations(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error validating destinations: %v\n", err)
		os.Exit(1)
	}

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	err = lifecycle.Start(ctx, lifecycle.StartConfig{
		RuntimeDir:  cfg.RuntimeDir,
		SocketGroup: cfg.SocketGroup,
		User:        cfg.User,
		Daemonize:   cfg.Daemonize,
		Logger:      logger,
		Serve: func(ctx context.Context, ln net.Listener) error {
			logger.Info("starting maildropd",
				"socket", lifecycle.SocketPath(cfg.RuntimeDir),
				"destinations", len(dests),
				"filters", len(cfg.Filters),
				"version", version)

			loop := intake.New(intake.Config{
				Listener:   ln,
				Engine:     filter.NewEngine(cfg.Filters),
				Deliverer:  destination.NewDeliverer(dests, collector, logger),
				Collector:  collector,
				Logger:     logger,
				BufferSize: cfg.BufferSize,
			})
			return loop.Serve(ctx)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
