package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/adapter/cli/cache"
	"github.com/felixgeelhaar/entitlekit/adapter/cli/events"
	"github.com/felixgeelhaar/entitlekit/adapter/cli/mcp"
	"github.com/felixgeelhaar/entitlekit/adapter/cli/purchases"
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
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	switch {
	case err == nil:
		cli.SetApp(mcpinternal.NewCLIApp(container))
	case cfg.IsDevelopment():
		// Commands that need the session report the missing app themselves.
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	default:
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}

	cli.AddCommand(purchases.Cmd)
	cli.AddCommand(cache.Cmd)
	cli.AddCommand(events.Cmd)
	cli.AddCommand(mcp.Cmd)

	runErr := cli.ExecuteContext(ctx)
	if container != nil {
		if err := container.Close(); err != nil {
			logger.Warn("failed to close container", "error", err)
		}
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
