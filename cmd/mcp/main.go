package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/car-knowledge-assistant/internal/adapters/mcp"
	"github.com/kirillkom/car-knowledge-assistant/internal/bootstrap"
	"github.com/kirillkom/car-knowledge-assistant/internal/config"
	"github.com/kirillkom/car-knowledge-assistant/internal/observability/logging"
)

func main() {
	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("config_load_failed", "error", err.Error())
		os.Exit(1)
	}
	// stdout carries the MCP protocol.
	logger := logging.SetupWriter(os.Stderr, "mcp", cfg.LogLevel)

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

	logger.Info("mcp_serving_stdio", "llm_mode", app.LLMMode)
	server := mcpadapter.NewServer(app.Assistant)
	if err := mcpadapter.ServeStdio(ctx, server, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp_server_failed", "error", err.Error())
		os.Exit(1)
	}
}
