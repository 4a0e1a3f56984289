package purchases

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start the backend session",
	Long: `Start the backend session. Outstanding store purchases are sent along,
and purchases whose confirmation failed earlier are replayed afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}

		result, err := await(cmd, app, app.Orchestrator.LaunchAsync())
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, result)
		}

		active := 0
		for _, p := range result.Permissions {
			if p.Active {
				active++
			}
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session launched for %s\n", result.UID)
		fmt.Fprintf(out, "  products:    %d\n", len(result.Products))
		fmt.Fprintf(out, "  permissions: %d (%d active)\n", len(result.Permissions), active)
		if len(result.Experiments) > 0 {
			fmt.Fprintf(out, "  experiments: %d\n", len(result.Experiments))
		}
		return nil
	},
}
