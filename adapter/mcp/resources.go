package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources that expose session data.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	if deps.App == nil {
		return fmt.Errorf("app is required")
	}
	t := newToolset(deps)

	jsonResource(srv, "entitlekit://permissions", "Permissions",
		"The user's permissions and the ids of the active ones",
		func(ctx context.Context) (any, error) { return t.permissions(ctx, struct{}{}) })

	jsonResource(srv, "entitlekit://offerings", "Offerings",
		"Configured offerings with store prices attached",
		func(ctx context.Context) (any, error) { return t.offerings(ctx, struct{}{}) })

	jsonResource(srv, "entitlekit://status", "Session status",
		"Session, catalog and queue state of the orchestrator",
		func(ctx context.Context) (any, error) { return t.status(ctx, struct{}{}) })

	jsonResource(srv, "entitlekit://cache", "Cached session",
		"The last session result persisted to the entitlement cache",
		func(ctx context.Context) (any, error) { return t.cacheShow(ctx, struct{}{}) })

	jsonResource(srv, "entitlekit://pending", "Pending purchases",
		"Purchases waiting for backend confirmation",
		func(ctx context.Context) (any, error) { return t.cachePending(ctx, struct{}{}) })

	jsonResource(srv, "entitlekit://health", "Health",
		"Health of the cache, broker and backend",
		func(ctx context.Context) (any, error) { return t.health(ctx, struct{}{}) })

	return nil
}

func jsonResource(srv *mcp.Server, uri, name, description string, load func(context.Context) (any, error)) {
	srv.Resource(uri).
		Name(name).
		Description(description).
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			v, err := load(ctx)
			if err != nil {
				return nil, err
			}
			return jsonContent(uri, v)
		})
}

func jsonContent(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
