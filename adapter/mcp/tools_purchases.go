package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/application"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/sandbox"
)

type launchOutput struct {
	UID         string `json:"uid"`
	Products    int    `json:"products"`
	Permissions int    `json:"permissions"`
	Experiments int    `json:"experiments"`
	Offerings   int    `json:"offerings"`
}

type offeringsOutput struct {
	Main      string         `json:"main,omitempty"`
	Offerings []offeringView `json:"offerings"`
}

type offeringView struct {
	ID       string             `json:"id"`
	Tag      domain.OfferingTag `json:"tag"`
	Products []productView      `json:"products"`
}

type eligibilityInput struct {
	ProductIDs []string `json:"product_ids" jsonschema:"required"`
}

type purchaseInput struct {
	ProductID       string `json:"product_id" jsonschema:"required"`
	ReplaceProduct  string `json:"replace_product_id,omitempty"`
	ReplacementMode string `json:"replacement_mode,omitempty"`
	AccountID       string `json:"account_id,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
}

func registerPurchasesTools(srv *mcp.Server, t *toolset) error {
	srv.Tool("purchases.launch").
		Description("Launch the purchases session and report what the backend returned").
		Handler(timed(t, "purchases.launch", t.launch))

	srv.Tool("purchases.permissions").
		Description("List the user's permissions").
		Handler(timed(t, "purchases.permissions", t.permissions))

	srv.Tool("purchases.products").
		Description("List products with their store prices").
		Handler(timed(t, "purchases.products", t.products))

	srv.Tool("purchases.offerings").
		Description("List offerings with store prices attached").
		Handler(timed(t, "purchases.offerings", t.offerings))

	srv.Tool("purchases.experiments").
		Description("List the user's experiment assignments").
		Handler(timed(t, "purchases.experiments", t.experiments))

	srv.Tool("purchases.eligibility").
		Description("Check intro offer and free trial eligibility for product ids").
		Handler(timed(t, "purchases.eligibility", t.eligibility))

	srv.Tool("purchases.purchase").
		Description("Purchase a product and confirm it with the backend. Replacement modes: " + strings.Join(cli.ReplacementModeNames(), ", ")).
		Handler(timed(t, "purchases.purchase", t.purchase))

	srv.Tool("purchases.restore").
		Description("Restore the store purchase history and return the refreshed permissions").
		Handler(timed(t, "purchases.restore", t.restore))

	srv.Tool("purchases.sync").
		Description("Submit the purchase history to the backend without waiting for permissions").
		Handler(timed(t, "purchases.sync", t.sync))

	srv.Tool("purchases.foreground").
		Description("Reconcile purchases that completed while the app was in the background").
		Handler(timed(t, "purchases.foreground", t.foreground))

	srv.Tool("purchases.status").
		Description("Show session, catalog and queue state").
		Handler(timed(t, "purchases.status", t.status))

	return nil
}

func (t *toolset) launch(ctx context.Context, _ struct{}) (launchOutput, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return launchOutput{}, err
	}
	result, err := await(ctx, t, orch.LaunchAsync())
	if err != nil {
		return launchOutput{}, err
	}
	out := launchOutput{
		UID:         result.UID,
		Products:    len(result.Products),
		Permissions: len(result.Permissions),
		Experiments: len(result.Experiments),
	}
	if result.Offerings != nil {
		out.Offerings = len(result.Offerings.Available)
	}
	return out, nil
}

func (t *toolset) permissions(ctx context.Context, _ struct{}) (permissionsOutput, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return permissionsOutput{}, err
	}
	perms, err := await(ctx, t, orch.CheckPermissionsAsync())
	if err != nil {
		return permissionsOutput{}, err
	}
	return newPermissionsOutput(perms), nil
}

func (t *toolset) products(ctx context.Context, _ struct{}) ([]productView, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return nil, err
	}
	products, err := await(ctx, t, orch.LoadProductsAsync())
	if err != nil {
		return nil, err
	}
	return productViews(sortedProducts(products)), nil
}

func (t *toolset) offerings(ctx context.Context, _ struct{}) (offeringsOutput, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return offeringsOutput{}, err
	}
	offerings, err := await(ctx, t, orch.OfferingsAsync())
	if err != nil {
		return offeringsOutput{}, err
	}

	out := offeringsOutput{Offerings: make([]offeringView, 0, len(offerings.Available))}
	if main := offerings.Main(); main != nil {
		out.Main = main.ID
	}
	for _, o := range offerings.Available {
		out.Offerings = append(out.Offerings, offeringView{
			ID:       o.ID,
			Tag:      o.Tag,
			Products: productViews(o.Products),
		})
	}
	return out, nil
}

func (t *toolset) experiments(ctx context.Context, _ struct{}) (map[string]domain.Experiment, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return nil, err
	}
	return await(ctx, t, orch.ExperimentsAsync())
}

func (t *toolset) eligibility(ctx context.Context, input eligibilityInput) (map[string]domain.Eligibility, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return nil, err
	}
	ids := cli.SplitIDs(input.ProductIDs)
	if len(ids) == 0 {
		return nil, errors.New("product_ids is required")
	}
	return await(ctx, t, orch.EligibilityAsync(ids))
}

func (t *toolset) purchase(ctx context.Context, input purchaseInput) (permissionsOutput, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return permissionsOutput{}, err
	}
	productID := strings.TrimSpace(input.ProductID)
	if productID == "" {
		return permissionsOutput{}, errors.New("product_id is required")
	}
	mode, err := cli.ParseReplacementMode(input.ReplacementMode)
	if err != nil {
		return permissionsOutput{}, err
	}

	if input.Outcome != "" {
		if err := t.scriptOutcome(ctx, productID, sandbox.Outcome(strings.ToLower(input.Outcome))); err != nil {
			return permissionsOutput{}, err
		}
	}

	perms, err := await(ctx, t, orch.PurchaseAsync(productID, application.PurchaseParams{
		ReplacedProductID: input.ReplaceProduct,
		Options: domain.PurchaseOptions{
			ReplacementMode:     mode,
			ObfuscatedAccountID: input.AccountID,
		},
	}))
	if err != nil {
		return permissionsOutput{}, err
	}
	return newPermissionsOutput(perms), nil
}

// scriptOutcome sets how the sandbox store answers the next purchase of a
// product id.
func (t *toolset) scriptOutcome(ctx context.Context, productID string, outcome sandbox.Outcome) error {
	if t.app.Store == nil {
		return errNoSandbox
	}
	if !outcome.Valid() {
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	products, err := await(ctx, t, t.app.Orchestrator.LoadProductsAsync())
	if err != nil {
		return err
	}
	p, ok := products[productID]
	if !ok || !p.HasStoreCounterpart() {
		return cli.FailWithHint(domain.ErrProductNotFound)
	}
	return t.app.Store.SetOutcome(p.StoreID, outcome)
}

func (t *toolset) restore(ctx context.Context, _ struct{}) (permissionsOutput, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return permissionsOutput{}, err
	}
	perms, err := await(ctx, t, orch.RestoreAsync())
	if err != nil {
		return permissionsOutput{}, err
	}
	return newPermissionsOutput(perms), nil
}

func (t *toolset) sync(ctx context.Context, _ struct{}) (map[string]string, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return nil, err
	}
	orch.SyncPurchases()
	t.settle()
	return map[string]string{"status": "synced"}, nil
}

func (t *toolset) foreground(ctx context.Context, _ struct{}) (application.Status, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return application.Status{}, err
	}
	orch.OnAppForeground()
	t.settle()
	return orch.Status(), nil
}

func (t *toolset) status(ctx context.Context, _ struct{}) (application.Status, error) {
	orch, err := t.orchestrator()
	if err != nil {
		return application.Status{}, err
	}
	return orch.Status(), nil
}
