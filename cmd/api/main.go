package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/finvault/internal/adapters/http"
	"github.com/kirillkom/finvault/internal/bootstrap"
	"github.com/kirillkom/finvault/internal/config"
	"github.com/kirillkom/finvault/internal/observability/logging"
	"github.com/kirillkom/finvault/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, logger, httpMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.Retrieval,
		app.Research,
		app.History,
		[]httpadapter.HealthProbe{
			{Name: "postgres", Check: app.PingPostgres},
			{Name: "qdrant", Check: app.CheckNarrativeIndex},
		},
		httpMetrics,
		httpadapter.RouterOptions{
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			MaxInFlight:    cfg.APIMaxInFlight,
		},
		logger,
	).Handler()

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.InferenceTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
