package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common purchase workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("paywall_review").
		Description("Review what the paywall would show: offerings, prices, trial eligibility and experiments.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Paywall Review", `Review the paywall for the current user. Please:

1. Read the entitlekit://offerings resource and identify the main offering
2. Call purchases.eligibility with the store-backed product ids of that offering
3. Call purchases.experiments to see which paywall experiments apply

Then summarize:
- Which products the paywall shows, with prices and billing periods
- Which products can still use an introductory offer or free trial
- Products configured on the backend but missing from the store catalog
- How the experiment assignments might change what is shown`), nil
		})

	srv.Prompt("purchase_troubleshooting").
		Description("Diagnose why a purchase did not grant the expected permission.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			product := args["product_id"]
			if product == "" {
				product = "the product the user bought"
			}
			return userPrompt("Purchase Troubleshooting", fmt.Sprintf(`A purchase of %s did not unlock what the user expected. Please investigate:

1. Read entitlekit://status for the session state, launch error and in-flight purchases
2. Read entitlekit://pending for purchases whose backend confirmation failed
3. Call sandbox.purchases (sandbox mode only) to see pending and unacknowledged store purchases
4. Read entitlekit://permissions for what the backend granted

Explain where the purchase is stuck: still pending in the store, waiting for
confirmation replay, confirmed but mapped to another permission, or never
started. Suggest the next tool call (purchases.foreground, purchases.restore
or sandbox.settle) that would move it forward.`, product)), nil
		})

	srv.Prompt("entitlement_audit").
		Description("Compare cached permissions with a fresh backend session.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Entitlement Audit", `Audit the user's entitlements:

1. Read entitlekit://cache for the last persisted session
2. Call purchases.restore to submit the full store history
3. Compare the restored permissions with the cached ones

Report permissions that appeared, disappeared or changed renew state, and
flag any active permission whose expiration is already in the past.`), nil
		})

	return nil
}

func userPrompt(description, text string) *mcp.PromptResult {
	return &mcp.PromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: string(mcp.RoleUser),
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}
