package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	cortexmcp "github.com/ajitpratap0/cortex-graph/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  create_entities, create_relations, add_observations
  delete_entities, delete_observations, delete_relations
  read_graph, search_nodes, find_nodes, open_nodes
  vector_search, graph_stats
  extract_knowledge (only when an Anthropic API key is configured)

Tool schemas follow MCP_COMPATIBILITY (claude, gemini, openai, universal).

If Neo4j or the embedding provider are unavailable at startup the server still
starts; individual tool calls will return MCP error responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			mode := cfg.Compatibility()
			if mode == "" {
				mode = cfg.MCP.Compatibility
			}

			var graph cortexmcp.Graph
			svc, err := newService(ctx, logger)
			if err != nil {
				// Tool calls will return per-call errors rather than crashing.
				logger.Error("mcp: knowledge graph unavailable; tool calls will fail", "error", err)
			} else {
				defer func() { _ = svc.Close() }()
				if cfg.Backfill.OnStartup {
					svc.Start(ctx)
				}
				graph = svc
			}

			srv := cortexmcp.NewServer(graph, newExtractor(logger), mode, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: cortex-graph MCP server starting", "transport", "stdio", "compatibility", srv.Mode())

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
