package cache

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List purchases waiting for backend confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Pending == nil {
			return errNoCache
		}
		ctx, cancel := cli.OperationContext(cmd)
		defer cancel()

		records, err := app.Pending.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load pending purchases: %w", err)
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, records)
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No pending purchases.")
			return nil
		}
		for _, r := range records {
			next := "now"
			if r.NextAttemptAt != nil {
				next = r.NextAttemptAt.Local().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%s  %-24s attempts=%d next=%s\n", r.ID, r.Purchase.ProductID, r.Attempts, next)
			if r.LastError != "" && cli.Verbose() {
				fmt.Fprintf(out, "    last error: %s\n", r.LastError)
			}
		}
		return nil
	},
}
