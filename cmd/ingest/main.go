package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/snarelab/hivetrace/internal/api"
	"github.com/snarelab/hivetrace/internal/config"
	"github.com/snarelab/hivetrace/internal/server"
	"github.com/snarelab/hivetrace/internal/stream"
)

func main() {
	cfg, err := config.LoadIngest()
	if err != nil {
		slog.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sc := stream.New(cfg.Redis)
	defer sc.Close()

	if err := sc.Ping(ctx); err != nil {
		logger.Error("redis unreachable at startup", "err", err)
		os.Exit(2)
	}

	handler := api.NewIngestHandler(sc, logger)
	if err := server.Serve(ctx, logger, "ingest", cfg.Ingest.Port, handler.Routes(cfg.Ingest.APIKeys)); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
