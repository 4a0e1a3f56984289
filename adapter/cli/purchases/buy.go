package purchases

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/application"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/sandbox"
)

var (
	buyReplace     string
	buyReplacement string
	buyAccountID   string
	buyOutcome     string
)
var buyCmd = &cobra.Command{
	Use:   "buy <product-id>",
	Short: "Purchase a product",
	Long: `Purchase a product through the store and confirm it with the backend.

Replacement modes for --replacement:
  with-time-proration, charge-prorated, without-proration, deferred,
  charge-full-price

The sandbox store completes purchases unless --outcome says otherwise
(completed, pending, failed, canceled).`,
	Example: `  entitlekit purchases buy pro_monthly
  entitlekit purchases buy pro_annual --replace pro_monthly --replacement deferred
  entitlekit purchases buy coins --outcome pending`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		mode, err := cli.ParseReplacementMode(buyReplacement)
		if err != nil {
			return err
		}
		productID := args[0]

		if buyOutcome != "" {
			if err := scriptOutcome(cmd, app, productID, sandbox.Outcome(strings.ToLower(buyOutcome))); err != nil {
				return err
			}
		}

		perms, err := await(cmd, app, app.Orchestrator.PurchaseAsync(productID, application.PurchaseParams{
			ReplacedProductID: buyReplace,
			Options: domain.PurchaseOptions{
				ReplacementMode:     mode,
				ObfuscatedAccountID: buyAccountID,
			},
		}))
		if err != nil {
			return err
		}
		if !cli.JSONOutput() {
			fmt.Fprintf(cmd.OutOrStdout(), "Purchased %s\n", productID)
		}
		return cli.PrintPermissions(cmd, perms)
	},
}

// scriptOutcome sets how the sandbox store answers the next purchase of
// productID. The store is keyed by store id, so products are loaded first.
func scriptOutcome(cmd *cobra.Command, app *cli.App, productID string, outcome sandbox.Outcome) error {
	if app.Store == nil {
		return fmt.Errorf("--outcome needs the sandbox store")
	}
	if !outcome.Valid() {
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	products, err := await(cmd, app, app.Orchestrator.LoadProductsAsync())
	if err != nil {
		return err
	}
	p, ok := products[productID]
	if !ok || !p.HasStoreCounterpart() {
		return cli.FailWithHint(domain.ErrProductNotFound)
	}
	return app.Store.SetOutcome(p.StoreID, outcome)
}

func init() {
	buyCmd.Flags().StringVar(&buyReplace, "replace", "", "product id of the subscription being replaced")
	buyCmd.Flags().StringVar(&buyReplacement, "replacement", "", "replacement mode for --replace")
	buyCmd.Flags().StringVar(&buyAccountID, "account-id", "", "obfuscated account id forwarded to the store")
	buyCmd.Flags().StringVar(&buyOutcome, "outcome", "", "sandbox outcome for this purchase")
}
