package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the configured cache, broker and backend breaker",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			return fmt.Errorf("app not initialized")
		}

		ctx, cancel := OperationContext(cmd)
		defer cancel()
		health := app.Health.Check(ctx)

		if JSONOutput() {
			if err := PrintJSON(cmd, health); err != nil {
				return err
			}
		} else {
			names := make([]string, 0, len(health.Checks))
			for name := range health.Checks {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status: %s\n", health.Status)
			for _, name := range names {
				check := health.Checks[name]
				fmt.Fprintf(out, "  %-10s %-9s %s\n", name, check.Status, check.Message)
			}
		}

		if health.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
