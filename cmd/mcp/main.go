package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/finvault/internal/adapters/mcp"
	"github.com/kirillkom/finvault/internal/bootstrap"
	"github.com/kirillkom/finvault/internal/config"
	"github.com/kirillkom/finvault/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Retrieval, app.Research, logger).MCPServer(version)
	errLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)

	logger.Info("mcp_stdio_serving", "version", version)
	if err := mcpadapter.ServeStdio(ctx, srv, os.Stdin, os.Stdout, errLog); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp_server_failed", "error", err)
	}
}
