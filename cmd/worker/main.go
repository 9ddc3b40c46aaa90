package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/car-knowledge-assistant/internal/bootstrap"
	"github.com/kirillkom/car-knowledge-assistant/internal/config"
	"github.com/kirillkom/car-knowledge-assistant/internal/observability/logging"
	"github.com/kirillkom/car-knowledge-assistant/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("config_load_failed", "error", err.Error())
		os.Exit(1)
	}
	logger := logging.Setup(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("worker_requires_queue", "hint", "set NATS_URL")
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err.Error())
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSIngestSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeIngestRequested(ctx, func(handlerCtx context.Context, runID string) error {
		if run, err := app.Assistant.IngestionRun(handlerCtx, runID); err == nil {
			workerMetrics.ObserveQueueLag(time.Since(run.CreatedAt))
		}

		jobCtx, cancel := context.WithTimeout(handlerCtx, cfg.IngestJobTimeout())
		defer cancel()

		start := time.Now()
		workerMetrics.StartJob()
		err := app.Assistant.RunIngest(jobCtx, runID)
		workerMetrics.FinishJob(time.Since(start), err)
		if err != nil {
			logger.Error("ingest_job_failed", "run_id", runID, "error", err.Error())
			return err
		}
		logger.Info("ingest_job_completed", "run_id", runID, "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err.Error())
		os.Exit(1)
	}
}
