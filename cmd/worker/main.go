package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/snarelab/hivetrace/internal/config"
	"github.com/snarelab/hivetrace/internal/geoip"
	"github.com/snarelab/hivetrace/internal/metrics"
	"github.com/snarelab/hivetrace/internal/server"
	"github.com/snarelab/hivetrace/internal/store"
	"github.com/snarelab/hivetrace/internal/stream"
	"github.com/snarelab/hivetrace/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var geo geoip.Resolver = geoip.NopResolver{}
	if cfg.GeoIPDB != "" {
		mmdb, err := geoip.Open(cfg.GeoIPDB)
		if err != nil {
			logger.Warn("geoip database unavailable, continuing without lookups", "err", err)
		} else {
			geo = mmdb
			defer mmdb.Close()
		}
	}

	sc := stream.New(cfg.Redis)
	defer sc.Close()

	if err := sc.Ping(ctx); err != nil {
		logger.Error("redis unreachable at startup", "err", err)
		os.Exit(2)
	}

	st := store.New(cfg.DataDir, logger)
	sw := store.NewSweeper(cfg.DataDir, cfg.RetentionDays, logger)
	w := worker.New(sc, st, sw, geo, cfg.Worker, logger)

	// Metrics endpoint for scraping; the worker has no other HTTP surface.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := server.Serve(ctx, logger, "worker-metrics", cfg.Worker.MetricsPort, mux); err != nil {
			logger.Warn("metrics server failed", "err", err)
		}
	}()

	server.RunWithRecovery(ctx, logger, "analytics-worker", func(ctx context.Context) {
		if err := w.Run(ctx); err != nil {
			logger.Error("worker run failed", "err", err)
		}
	})
}
