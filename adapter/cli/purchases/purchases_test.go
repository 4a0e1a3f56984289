package purchases

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/application"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/sandbox"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

type fakeBackend struct {
	mu       sync.Mutex
	granted  map[string]domain.Permission
	restored int
}

func (b *fakeBackend) result() *domain.SessionResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	perms := make(map[string]domain.Permission, len(b.granted))
	for k, v := range b.granted {
		perms[k] = v
	}
	pro := domain.Product{ID: "pro", StoreID: "com.example.pro", Type: domain.ProductTypeSubscription, Duration: domain.DurationMonthly}
	return &domain.SessionResult{
		UID:       "user-1",
		Timestamp: time.Now().UTC(),
		Products: map[string]domain.Product{
			"pro":   pro,
			"coins": {ID: "coins", StoreID: "com.example.coins", Type: domain.ProductTypeOneTime},
		},
		Permissions: perms,
		Offerings: &domain.Offerings{Available: []domain.Offering{
			{ID: "default", Tag: domain.OfferingTagMain, Products: []domain.Product{pro}},
		}},
		Experiments: map[string]domain.Experiment{
			"paywall_copy": {ID: "paywall_copy", Group: domain.ExperimentGroup{Type: "treatment"}},
		},
	}
}

func (b *fakeBackend) InitSession(context.Context, int64, string) (*domain.SessionResult, error) {
	return b.result(), nil
}

func (b *fakeBackend) InitSessionWithPurchases(context.Context, int64, string, []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	return b.result(), nil
}

func (b *fakeBackend) ConfirmPurchase(_ context.Context, _ int64, p domain.NormalizedPurchase) (*domain.SessionResult, error) {
	b.mu.Lock()
	b.granted["premium"] = domain.Permission{ID: "premium", ProductID: "pro", RenewState: domain.RenewStateWillRenew, Active: true}
	b.mu.Unlock()
	return b.result(), nil
}

func (b *fakeBackend) Restore(context.Context, int64, []domain.NormalizedPurchase) (*domain.SessionResult, error) {
	b.mu.Lock()
	b.restored++
	b.mu.Unlock()
	return b.result(), nil
}

func (b *fakeBackend) EligibilityForIDs(context.Context, []string, int64) (map[string]domain.Eligibility, error) {
	return map[string]domain.Eligibility{
		"pro":   {Status: domain.EligibilityEligible},
		"coins": {Status: domain.EligibilityUnknown},
	}, nil
}

func setupApp(t *testing.T) (*cli.App, *fakeBackend) {
	t.Helper()
	catalog, err := sandbox.ParseCatalog([]byte(`{"products":[
		{"product_id":"com.example.pro","type":"subs","price":"$4.99"},
		{"product_id":"com.example.coins","type":"inapp","price":"$0.99"}
	]}`))
	require.NoError(t, err)

	backend := &fakeBackend{granted: map[string]domain.Permission{}}
	store := sandbox.New(catalog, sandbox.WithLogger(observability.DiscardLogger()))
	orch, err := application.New(application.Dependencies{
		Billing: store,
		Backend: backend,
	}, application.Config{InstallDate: 1}, observability.DiscardLogger())
	require.NoError(t, err)
	store.SetListener(orch)
	t.Cleanup(orch.Close)

	app := &cli.App{Orchestrator: orch, Store: store}
	cli.SetApp(app)
	t.Cleanup(func() { cli.SetApp(nil) })
	return app, backend
}

func resetFlags() {
	buyReplace = ""
	buyReplacement = ""
	buyAccountID = ""
	buyOutcome = ""
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestCommands_NoApp(t *testing.T) {
	cli.SetApp(nil)
	for _, cmd := range []*cobra.Command{launchCmd, permissionsCmd, productsCmd, statusCmd, restoreCmd, syncCmd} {
		_, err := run(t, cmd)
		assert.ErrorIs(t, err, errNoApp, cmd.Name())
	}
}

func TestLaunchCmd(t *testing.T) {
	setupApp(t)

	out, err := run(t, launchCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Session launched for user-1")
	assert.Contains(t, out, "products:    2")
	assert.Contains(t, out, "experiments: 1")
}

func TestBuyCmd_GrantsPermission(t *testing.T) {
	resetFlags()
	app, _ := setupApp(t)

	out, err := run(t, buyCmd, "pro")
	require.NoError(t, err)
	assert.Contains(t, out, "Purchased pro")
	assert.Contains(t, out, "premium")
	assert.Contains(t, out, "active")

	out, err = run(t, permissionsCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "product=pro")

	outstanding, err := app.Store.QueryOutstandingPurchases(context.Background())
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.True(t, outstanding[0].Acknowledged)
}

func TestBuyCmd_ScriptedPendingOutcome(t *testing.T) {
	resetFlags()
	setupApp(t)

	buyOutcome = "pending"
	_, err := run(t, buyCmd, "coins")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPurchasePending)
	assert.Contains(t, err.Error(), "still processing")
}

func TestBuyCmd_InvalidFlags(t *testing.T) {
	setupApp(t)

	resetFlags()
	buyReplacement = "sideways"
	_, err := run(t, buyCmd, "pro")
	assert.ErrorContains(t, err, "unknown replacement mode")

	resetFlags()
	buyOutcome = "maybe"
	_, err = run(t, buyCmd, "pro")
	assert.ErrorContains(t, err, "unknown outcome")

	resetFlags()
	buyOutcome = "failed"
	_, err = run(t, buyCmd, "missing")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestBuyCmd_UnknownProduct(t *testing.T) {
	resetFlags()
	setupApp(t)

	_, err := run(t, buyCmd, "missing")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestProductsCmd(t *testing.T) {
	setupApp(t)

	out, err := run(t, productsCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "$4.99")
	assert.Contains(t, out, "$0.99")
	assert.Less(t, bytes.Index([]byte(out), []byte("coins")), bytes.Index([]byte(out), []byte("pro ")))
}

func TestOfferingsCmd(t *testing.T) {
	setupApp(t)

	out, err := run(t, offeringsCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "default (main)")
	assert.Contains(t, out, "$4.99")
}

func TestExperimentsCmd(t *testing.T) {
	setupApp(t)

	out, err := run(t, experimentsCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "paywall_copy")
	assert.Contains(t, out, "group=treatment")
}

func TestEligibilityCmd(t *testing.T) {
	setupApp(t)

	out, err := run(t, eligibilityCmd, "pro,missing")
	require.NoError(t, err)
	assert.Contains(t, out, "intro_or_trial_eligible")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "not found")
	assert.NotContains(t, out, "coins")
}

func TestRestoreAndSyncCmd(t *testing.T) {
	_, backend := setupApp(t)

	out, err := run(t, restoreCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored.")

	out, err = run(t, syncCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Sync submitted.")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 2, backend.restored)
}

func TestStatusCmd(t *testing.T) {
	setupApp(t)

	out, err := run(t, statusCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "not_launched")

	_, err = run(t, launchCmd)
	require.NoError(t, err)

	out, err = run(t, statusCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded (user-1)")
	assert.Contains(t, out, "Force retry: false")
}
