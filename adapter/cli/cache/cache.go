// Package cache holds the CLI commands for the local entitlement and
// pending-purchase caches.
package cache

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
)

// Cmd is the cache command group.
var Cmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the entitlement cache",
}

var errNoCache = errors.New("cache commands require an initialized app")

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(clearCmd)
	Cmd.AddCommand(pendingCmd)
	Cmd.AddCommand(keygenCmd)
}

func requireApp() (*cli.App, error) {
	app := cli.GetApp()
	if app == nil || app.Cache == nil {
		return nil, errNoCache
	}
	return app, nil
}
