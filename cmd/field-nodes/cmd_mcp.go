package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	fieldmcp "github.com/fieldnodes/field-nodes/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  create_node    — create a node (credited to mcp.author unless given)
  get_node       — fetch one node by ID
  search_nodes   — free-text search
  list_nodes     — list nodes with optional status, author and tag filters
  connect_nodes  — connect two nodes in both directions
  node_stats     — counts by status and type

If the store is unavailable at startup the server still starts;
individual tool calls will return MCP error responses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			st, storeErr := newStore(logger)
			if storeErr != nil {
				// Tool calls return per-call errors rather than crashing.
				logger.Error("mcp: failed to open store; tool calls requiring storage will fail",
					"error", storeErr)
			} else {
				defer func() { _ = st.Close() }()
			}

			srv := fieldmcp.NewServer(st, cfg.MCP.Author, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: field-nodes MCP server starting", "transport", "stdio", "backend", cfg.Storage.Backend)

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
