// Package mcp exposes the purchases session as MCP tools, resources and
// prompts.
package mcp

import (
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

const defaultToolTimeout = 30 * time.Second

// ToolDependencies provides handlers and context for MCP tools.
type ToolDependencies struct {
	App     *cli.App
	Logger  *slog.Logger
	Metrics observability.Metrics
	Version string

	// Timeout bounds how long a tool waits for the orchestrator.
	Timeout time.Duration
}

// RegisterCLITools registers MCP tools that mirror CLI functionality.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	t := newToolset(deps)
	if err := registerCoreTools(srv, t); err != nil {
		return err
	}
	if err := registerPurchasesTools(srv, t); err != nil {
		return err
	}
	if err := registerCacheTools(srv, t); err != nil {
		return err
	}
	if err := registerSandboxTools(srv, t); err != nil {
		return err
	}

	return nil
}

// toolset carries the dependencies every tool handler needs.
type toolset struct {
	app     *cli.App
	logger  *slog.Logger
	metrics observability.Metrics
	version string
	timeout time.Duration
}

func newToolset(deps ToolDependencies) *toolset {
	t := &toolset{
		app:     deps.App,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		version: deps.Version,
		timeout: deps.Timeout,
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.metrics == nil {
		t.metrics = observability.NoopMetrics{}
	}
	if t.version == "" {
		t.version = "dev"
	}
	if t.timeout <= 0 {
		t.timeout = defaultToolTimeout
	}
	return t
}
