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
	"github.com/snarelab/hivetrace/internal/store"
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

	reader := store.NewReader(cfg.DataDir)
	handler := api.NewQueryHandler(reader, logger)

	if err := server.Serve(ctx, logger, "query", cfg.Query.Port, handler.Routes(cfg.Query.CORSOrigins)); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
