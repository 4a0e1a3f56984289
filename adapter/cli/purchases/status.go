package purchases

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, catalog and queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		status := app.Orchestrator.Status()
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, status)
		}

		out := cmd.OutOrStdout()
		session := string(status.Session)
		if status.SessionUID != "" {
			session += " (" + status.SessionUID + ")"
		}
		fmt.Fprintf(out, "Session:     %s\n", session)
		if status.LaunchError != "" {
			fmt.Fprintf(out, "Last error:  %s\n", status.LaunchError)
		}
		fmt.Fprintf(out, "Force retry: %t\n", status.ForceRetry)
		fmt.Fprintf(out, "Catalog:     %s (%d entries)\n", status.Catalog, status.CatalogSize)
		fmt.Fprintf(out, "Queued:      products=%d permissions=%d experiments=%d\n",
			status.QueuedProducts, status.QueuedPermissions, status.QueuedExperiments)
		if len(status.InFlightPurchases) > 0 {
			fmt.Fprintf(out, "In flight:   %s\n", strings.Join(status.InFlightPurchases, ", "))
		}
		return nil
	},
}
