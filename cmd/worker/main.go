package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/finvault/internal/bootstrap"
	"github.com/kirillkom/finvault/internal/config"
	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/observability/logging"
	"github.com/kirillkom/finvault/internal/observability/metrics"
)

const persistTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeQueryCompleted(ctx, func(handlerCtx context.Context, record domain.QueryRecord) error {
		if !record.CreatedAt.IsZero() {
			workerMetrics.ObserveEventLag(time.Since(record.CreatedAt))
		}

		persistCtx, cancel := context.WithTimeout(handlerCtx, persistTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartPersist()
		err := app.History.Record(persistCtx, record)
		workerMetrics.FinishPersist(time.Since(start), err)
		if err == nil {
			logger.Debug("query_history_persisted", "record_id", record.ID, "user_id", record.UserID)
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}
