package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/adapters/driving/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so an answer generator can search
chunks, verify its claims and keep session checkpoints.

Tools: search, verify, session_update, checkpoint, rehydrate.
Resources: greds://works, greds://chunks/{id}, greds://checkpoints/{id}/ancestry,
greds://audit and greds://audit/{type}.

By default, the server communicates over stdio using JSON-RPC. Use --port to
start a streamable HTTP server instead.

Examples:
  # Stdio mode (default)
  greds mcp serve

  # HTTP mode
  greds mcp serve --port 8080

Client configuration:
  {
    "mcpServers": {
      "greds": {
        "command": "/path/to/greds",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	ports := &mcp.Ports{
		Search:   searchService,
		Verifier: verifierService,
		Session:  sessionService,
		Ingest:   ingestService,
		Audit:    auditService,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		addr := fmt.Sprintf(":%d", mcpPort)
		cmd.PrintErrf("MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
