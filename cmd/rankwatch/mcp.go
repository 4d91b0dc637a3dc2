package main

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the rankwatch tools over MCP on stdio.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		srv := mcp.NewServer(&mcp.Implementation{Name: "rankwatch", Version: version}, nil)
		svc.RegisterMCP(srv)
		slog.Info("mcp: serving on stdio")
		return srv.Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
