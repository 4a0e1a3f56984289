package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/app"
	mcpinternal "github.com/felixgeelhaar/entitlekit/internal/mcp"
	"github.com/felixgeelhaar/entitlekit/pkg/config"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

func main() {
	logger := observability.NewLogger(observability.DefaultLogConfig())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version))

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("failed to close container", "error", err)
		}
	}()

	cliApp := mcpinternal.NewCLIApp(container)
	err = mcpinternal.Serve(ctx, cfg, cliApp, mcpinternal.Options{
		Version: cli.Version,
		Metrics: container.Metrics,
	}, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "error", err)
		cancel()
		os.Exit(1)
	}
}
