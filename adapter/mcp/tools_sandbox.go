package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/sandbox"
)

type outcomeInput struct {
	StoreID string `json:"store_id" jsonschema:"required"`
	Outcome string `json:"outcome" jsonschema:"required"`
}

type settleInput struct {
	PurchaseToken string `json:"purchase_token" jsonschema:"required"`
}

type ownedPurchase struct {
	domain.PlatformPurchase
	StateName string `json:"state_name"`
}

func registerSandboxTools(srv *mcp.Server, t *toolset) error {
	srv.Tool("sandbox.products").
		Description("List the sandbox store catalog").
		Handler(timed(t, "sandbox.products", t.sandboxProducts))

	srv.Tool("sandbox.purchases").
		Description("List purchases the sandbox store holds for the user, including pending ones").
		Handler(timed(t, "sandbox.purchases", t.sandboxPurchases))

	srv.Tool("sandbox.outcome").
		Description("Script how the sandbox store resolves purchases of a store id (completed, pending, failed, canceled)").
		Handler(timed(t, "sandbox.outcome", t.sandboxOutcome))

	srv.Tool("sandbox.settle").
		Description("Settle a pending sandbox purchase; the app sees it on its next foreground reconciliation").
		Handler(timed(t, "sandbox.settle", t.sandboxSettle))

	return nil
}

func (t *toolset) sandboxProducts(ctx context.Context, _ struct{}) ([]domain.StoreMetadata, error) {
	if t.app.Store == nil {
		return nil, errNoSandbox
	}
	return t.app.Store.Products(), nil
}

func (t *toolset) sandboxPurchases(ctx context.Context, _ struct{}) ([]ownedPurchase, error) {
	if t.app.Store == nil {
		return nil, errNoSandbox
	}
	purchases, err := t.app.Store.QueryOutstandingPurchases(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ownedPurchase, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, ownedPurchase{PlatformPurchase: p, StateName: p.State.String()})
	}
	return out, nil
}

func (t *toolset) sandboxOutcome(ctx context.Context, input outcomeInput) (map[string]string, error) {
	if t.app.Store == nil {
		return nil, errNoSandbox
	}
	if input.StoreID == "" {
		return nil, errors.New("store_id is required")
	}
	outcome := sandbox.Outcome(strings.ToLower(strings.TrimSpace(input.Outcome)))
	if !outcome.Valid() {
		return nil, fmt.Errorf("unknown outcome %q", input.Outcome)
	}
	if err := t.app.Store.SetOutcome(input.StoreID, outcome); err != nil {
		return nil, err
	}
	return map[string]string{"store_id": input.StoreID, "outcome": string(outcome)}, nil
}

func (t *toolset) sandboxSettle(ctx context.Context, input settleInput) (map[string]string, error) {
	if t.app.Store == nil {
		return nil, errNoSandbox
	}
	if input.PurchaseToken == "" {
		return nil, errors.New("purchase_token is required")
	}
	if err := t.app.Store.Settle(input.PurchaseToken); err != nil {
		return nil, err
	}
	return map[string]string{"purchase_token": input.PurchaseToken, "state": domain.PurchaseStatePurchased.String()}, nil
}
