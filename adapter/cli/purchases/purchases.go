// Package purchases holds the CLI commands that drive the orchestrator.
package purchases

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/application"
)

// Cmd is the purchases command group.
var Cmd = &cobra.Command{
	Use:     "purchases",
	Aliases: []string{"p"},
	Short:   "Drive the purchases session",
	Long: `Launch the session, query permissions, products, offerings and
experiments, and run purchases and restores against the configured store.`,
}

var errNoApp = errors.New("purchases commands require an initialized app (check ENTITLEKIT_PROJECT_KEY)")

func init() {
	Cmd.AddCommand(launchCmd)
	Cmd.AddCommand(permissionsCmd)
	Cmd.AddCommand(productsCmd)
	Cmd.AddCommand(offeringsCmd)
	Cmd.AddCommand(experimentsCmd)
	Cmd.AddCommand(eligibilityCmd)
	Cmd.AddCommand(buyCmd)
	Cmd.AddCommand(restoreCmd)
	Cmd.AddCommand(syncCmd)
	Cmd.AddCommand(statusCmd)
}

func requireApp() (*cli.App, error) {
	app := cli.GetApp()
	if app == nil || app.Orchestrator == nil {
		return nil, errNoApp
	}
	return app, nil
}

// await waits for f within the command's operation timeout, then lets
// background cache writes finish before the process exits.
func await[T any](cmd *cobra.Command, app *cli.App, f *application.Future[T]) (T, error) {
	ctx, cancel := cli.OperationContext(cmd)
	defer cancel()

	v, err := f.Await(ctx)
	settle(app)
	if err != nil {
		return v, cli.FailWithHint(err)
	}
	return v, nil
}

func settle(app *cli.App) {
	if app.Store != nil {
		app.Store.Wait()
	}
	app.Orchestrator.Wait()
}
