package purchases

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore purchases from the store history",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		perms, err := await(cmd, app, app.Orchestrator.RestoreAsync())
		if err != nil {
			return err
		}
		if !cli.JSONOutput() {
			fmt.Fprintln(cmd.OutOrStdout(), "Restored.")
		}
		return cli.PrintPermissions(cmd, perms)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send the store history to the backend without waiting for permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		app.Orchestrator.SyncPurchases()
		settle(app)
		fmt.Fprintln(cmd.OutOrStdout(), "Sync submitted.")
		return nil
	},
}
