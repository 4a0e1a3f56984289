package purchases

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
)

var offeringsCmd = &cobra.Command{
	Use:   "offerings",
	Short: "Show the configured offerings",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		offerings, err := await(cmd, app, app.Orchestrator.OfferingsAsync())
		if err != nil {
			return err
		}

		if cli.JSONOutput() {
			type offeringView struct {
				ID       string             `json:"id"`
				Tag      domain.OfferingTag `json:"tag"`
				Products []productView      `json:"products"`
			}
			views := make([]offeringView, 0, len(offerings.Available))
			for _, o := range offerings.Available {
				views = append(views, offeringView{ID: o.ID, Tag: o.Tag, Products: productViews(o.Products)})
			}
			return cli.PrintJSON(cmd, views)
		}

		out := cmd.OutOrStdout()
		if len(offerings.Available) == 0 {
			fmt.Fprintln(out, "No offerings.")
			return nil
		}
		for _, o := range offerings.Available {
			header := o.ID
			if o.Tag == domain.OfferingTagMain {
				header += " (main)"
			}
			fmt.Fprintln(out, header)
			products := append([]domain.Product(nil), o.Products...)
			cli.PrintProducts(cmd, products)
		}
		return nil
	},
}
