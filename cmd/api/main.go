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

	httpadapter "github.com/kirillkom/car-knowledge-assistant/internal/adapters/http"
	"github.com/kirillkom/car-knowledge-assistant/internal/bootstrap"
	"github.com/kirillkom/car-knowledge-assistant/internal/config"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/watcher"
	"github.com/kirillkom/car-knowledge-assistant/internal/observability/logging"
	"github.com/kirillkom/car-knowledge-assistant/internal/observability/metrics"
)

func main() {
	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("config_load_failed", "error", err.Error())
		os.Exit(1)
	}
	logger := logging.Setup("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	if err := app.PrepareIndex(ctx); err != nil {
		logger.Error("index_prepare_failed", "error", err.Error())
		os.Exit(1)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	httpMetrics.SetIndexChunks(app.Assistant.IndexStats().Count)

	if app.Queue != nil {
		go func() {
			err := app.Queue.SubscribeIndexRebuilt(ctx, func(handlerCtx context.Context, version string) error {
				if err := app.Assistant.ReloadIndex(handlerCtx); err != nil {
					return err
				}
				stats := app.Assistant.IndexStats()
				httpMetrics.SetIndexChunks(stats.Count)
				logger.Info("index_reloaded", "version", version, "count", stats.Count)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("index_subscription_failed", "error", err.Error())
			}
		}()
	}

	if cfg.CorpusWatch {
		w := watcher.New(cfg.CorpusPath, 2*time.Second, func(watchCtx context.Context) error {
			result, err := app.Assistant.Ingest(watchCtx)
			httpMetrics.RecordIngest("api", "sync", resultCount(result), err)
			return err
		}, logger)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("corpus_watcher_failed", "error", err.Error())
			}
		}()
	}

	handler, err := httpadapter.NewRouter(cfg, app.Assistant,
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithLLMMode(app.LLMMode),
	).Handler()
	if err != nil {
		logger.Error("router_init_failed", "error", err.Error())
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "llm_mode", app.LLMMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err.Error())
	}
}

func resultCount(result *domain.IngestResult) int {
	if result == nil {
		return 0
	}
	return result.Count
}
