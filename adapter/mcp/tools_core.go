package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

type versionOutput struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func registerCoreTools(srv *mcp.Server, t *toolset) error {
	srv.Tool("cli.health").
		Description("Check CLI wiring health").
		Handler(func(ctx context.Context, input struct{}) (map[string]string, error) {
			if t.app == nil {
				return nil, errors.New("app not initialized")
			}
			return map[string]string{"status": "ok"}, nil
		})

	srv.Tool("system.health").
		Description("Run the cache, broker and backend health checks").
		Handler(timed(t, "system.health", t.health))

	srv.Tool("system.version").
		Description("Report the server version").
		Handler(func(ctx context.Context, input struct{}) (versionOutput, error) {
			return versionOutput{Name: observability.ServiceName, Version: t.version}, nil
		})

	return nil
}

func (t *toolset) health(ctx context.Context, _ struct{}) (observability.OverallHealth, error) {
	if t.app.Health == nil {
		return observability.OverallHealth{}, errors.New("health checks not configured")
	}
	return t.app.Health.Check(ctx), nil
}
