package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

type cacheOutput struct {
	Empty  bool                  `json:"empty"`
	Result *domain.SessionResult `json:"result,omitempty"`
}

func registerCacheTools(srv *mcp.Server, t *toolset) error {
	srv.Tool("cache.show").
		Description("Show the cached session result").
		Handler(timed(t, "cache.show", t.cacheShow))

	srv.Tool("cache.clear").
		Description("Remove the cached session result; pending purchases are kept").
		Handler(timed(t, "cache.clear", t.cacheClear))

	srv.Tool("cache.pending").
		Description("List purchases waiting for backend confirmation").
		Handler(timed(t, "cache.pending", t.cachePending))

	return nil
}

func (t *toolset) cacheShow(ctx context.Context, _ struct{}) (cacheOutput, error) {
	if t.app.Cache == nil {
		return cacheOutput{}, errNoCache
	}
	result, err := t.app.Cache.Load(ctx)
	if err != nil {
		return cacheOutput{}, fmt.Errorf("load cache: %w", err)
	}
	return cacheOutput{Empty: result == nil, Result: result}, nil
}

func (t *toolset) cacheClear(ctx context.Context, _ struct{}) (map[string]string, error) {
	if t.app.Cache == nil {
		return nil, errNoCache
	}
	if err := t.app.Cache.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear cache: %w", err)
	}
	return map[string]string{"status": "cleared"}, nil
}

func (t *toolset) cachePending(ctx context.Context, _ struct{}) ([]*domain.PendingPurchase, error) {
	if t.app.Pending == nil {
		return nil, errNoCache
	}
	records, err := t.app.Pending.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending purchases: %w", err)
	}
	if records == nil {
		records = []*domain.PendingPurchase{}
	}
	return records, nil
}
