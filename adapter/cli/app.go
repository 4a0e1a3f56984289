package cli

import (
	"context"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/application"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/sandbox"
	"github.com/felixgeelhaar/entitlekit/pkg/config"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

// Cache is the entitlement cache as seen by the cache commands.
type Cache interface {
	domain.EntitlementCache
	Clear(ctx context.Context) error
}

// App holds the CLI application dependencies.
type App struct {
	Config       *config.Config
	Orchestrator *application.Orchestrator
	Store        *sandbox.Store
	Cache        Cache
	Pending      domain.PendingPurchaseStore
	Health       *observability.HealthRegistry
	Metrics      observability.Metrics
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
