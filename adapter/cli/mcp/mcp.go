// Package mcp holds the CLI commands that run the MCP server.
package mcp

import "github.com/spf13/cobra"

// Cmd is the MCP command group.
var Cmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage the entitlekit MCP interface",
}

func init() {
	Cmd.AddCommand(serveCmd)
}
