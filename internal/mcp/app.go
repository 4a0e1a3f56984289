package mcp

import (
	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/app"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container) *cli.App {
	return &cli.App{
		Config:       container.Config,
		Orchestrator: container.Orchestrator,
		Store:        container.Store,
		Cache:        container.Cache,
		Pending:      container.Pending,
		Health:       container.Health,
		Metrics:      container.Metrics,
	}
}
