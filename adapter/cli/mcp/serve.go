package mcp

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/entitlekit/internal/mcp"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Serve the purchases session over MCP (streamable HTTP). Requests need
a bearer token when MCP_AUTH_TOKEN is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Config == nil {
			return errors.New("mcp serve requires an initialized app (check ENTITLEKIT_PROJECT_KEY)")
		}

		cfg := *app.Config
		if serveAddr != "" {
			cfg.MCPAddr = serveAddr
		}

		logger := cli.Logger().With("component", "mcp")
		err := mcpinternal.Serve(cmd.Context(), &cfg, app, mcpinternal.Options{
			Version: cli.Version,
			Metrics: app.Metrics,
		}, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to MCP_ADDR)")
}

