package purchases

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Show the user's experiment groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		experiments, err := await(cmd, app, app.Orchestrator.ExperimentsAsync())
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, experiments)
		}

		out := cmd.OutOrStdout()
		if len(experiments) == 0 {
			fmt.Fprintln(out, "No experiments.")
			return nil
		}
		ids := make([]string, 0, len(experiments))
		for id := range experiments {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "%-24s group=%s\n", id, experiments[id].Group.Type)
		}
		return nil
	},
}
