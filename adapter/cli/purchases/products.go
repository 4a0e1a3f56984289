package purchases

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

// productView is a product with its store metadata, for JSON output.
type productView struct {
	domain.Product
	Store *domain.StoreMetadata `json:"store,omitempty"`
}

func productViews(products []domain.Product) []productView {
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{Product: p, Store: p.StoreDetails})
	}
	return views
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products with store prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		products, err := await(cmd, app, app.Orchestrator.LoadProductsAsync())
		if err != nil {
			return err
		}

		list := make([]domain.Product, 0, len(products))
		for _, p := range products {
			list = append(list, p)
		}
		if cli.JSONOutput() {
			cli.SortProducts(list)
			return cli.PrintJSON(cmd, productViews(list))
		}
		cli.PrintProducts(cmd, list)
		return nil
	},
}
