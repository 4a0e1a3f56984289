package purchases

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var permissionsCmd = &cobra.Command{
	Use:     "permissions",
	Aliases: []string{"perms"},
	Short:   "Show the user's permissions",
	Long: `Show the user's permissions. When the backend is unreachable the last
cached session is used, unless a purchase or restore failed since.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		perms, err := await(cmd, app, app.Orchestrator.CheckPermissionsAsync())
		if err != nil {
			return err
		}
		return cli.PrintPermissions(cmd, perms)
	},
}
