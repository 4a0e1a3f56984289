package cache

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached session result",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		ctx, cancel := cli.OperationContext(cmd)
		defer cancel()

		result, err := app.Cache.Load(ctx)
		if err != nil {
			return fmt.Errorf("load cache: %w", err)
		}
		if result == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
			return nil
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, result)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User:      %s\n", result.UID)
		fmt.Fprintf(out, "Cached at: %s\n", result.Timestamp.Local().Format(time.RFC1123))
		fmt.Fprintf(out, "Products:  %d\n", len(result.Products))
		return cli.PrintPermissions(cmd, result.Permissions)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached session result",
	Long: `Remove the cached session result. Pending purchases are kept: they are
paid purchases waiting for backend confirmation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		ctx, cancel := cli.OperationContext(cmd)
		defer cancel()

		if err := app.Cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
		return nil
	},
}
