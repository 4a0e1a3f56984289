package purchases

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility <product-id>[,<product-id>...]",
	Short: "Check trial and intro offer eligibility",
	Example: `  entitlekit purchases eligibility pro_monthly pro_annual
  entitlekit purchases eligibility pro_monthly,pro_annual --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		ids := cli.SplitIDs(args)
		result, err := await(cmd, app, app.Orchestrator.EligibilityAsync(ids))
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, result)
		}

		out := cmd.OutOrStdout()
		for _, id := range ids {
			e, ok := result[id]
			if !ok {
				fmt.Fprintf(out, "%-20s not found\n", id)
				continue
			}
			fmt.Fprintf(out, "%-20s %s\n", id, e.Status)
		}
		return nil
	},
}
