// Package mcp implements the Model Context Protocol server for cortex-graph.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/cortex-graph/internal/extract"
	"github.com/ajitpratap0/cortex-graph/internal/memory"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/search"
)

const (
	// defaultSearchLimit is the default number of results for search tools.
	defaultSearchLimit = search.DefaultLimit

	// defaultThreshold is the default minimum similarity for vector_search.
	defaultThreshold = search.DefaultThreshold
)

// Graph is the knowledge-graph service the tools operate on.
type Graph interface {
	CreateEntities(ctx context.Context, entities []models.Entity) (*memory.CreateResult, error)
	CreateRelations(ctx context.Context, relations []models.Relation) (*memory.RelationResult, error)
	AddObservations(ctx context.Context, additions []models.ObservationAddition) ([]models.ObservationResult, error)
	DeleteEntities(ctx context.Context, names []string) (int64, error)
	DeleteObservations(ctx context.Context, deletions []models.ObservationDeletion) (int, error)
	DeleteRelations(ctx context.Context, relations []models.Relation) (int64, error)
	ReadGraph(ctx context.Context) (*models.KnowledgeGraph, error)
	SearchNodes(ctx context.Context, query string, limit int) *models.SearchResult
	FindNodes(ctx context.Context, names []string) (*models.KnowledgeGraph, error)
	VectorSearch(ctx context.Context, q search.VectorQuery) (*models.SearchResult, error)
	Stats(ctx context.Context) (*models.GraphStats, error)
	Import(ctx context.Context, g *models.KnowledgeGraph) (*memory.ImportResult, error)
}

// Server wraps an MCPServer with cortex-graph dependencies.
type Server struct {
	mcp       *mcpserver.MCPServer
	graph     Graph
	extractor extract.Extractor
	mode      string
	tools     []mcpgo.Tool
	logger    *slog.Logger
}

// NewServer creates a new MCP server. If graph is nil, tool calls return an
// error response instead of panicking. The extract_knowledge tool is only
// registered when extractor is non-nil. An unknown mode logs a warning and
// falls back to the claude schema.
func NewServer(graph Graph, extractor extract.Extractor, mode string, logger *slog.Logger) *Server {
	parsed, ok := ParseMode(mode)
	if !ok {
		logger.Warn("mcp: unknown compatibility mode, using claude", "mode", mode)
	}
	s := &Server{
		graph:     graph,
		extractor: extractor,
		mode:      parsed,
		logger:    logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"cortex-graph",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	handlers := []struct {
		tool    mcpgo.Tool
		handler mcpserver.ToolHandlerFunc
	}{
		{buildCreateEntitiesTool(), s.handleCreateEntities},
		{buildCreateRelationsTool(), s.handleCreateRelations},
		{buildAddObservationsTool(), s.handleAddObservations},
		{buildDeleteEntitiesTool(), s.handleDeleteEntities},
		{buildDeleteObservationsTool(), s.handleDeleteObservations},
		{buildDeleteRelationsTool(), s.handleDeleteRelations},
		{buildReadGraphTool(), s.handleReadGraph},
		{buildSearchNodesTool(), s.handleSearchNodes},
		{buildFindNodesTool("find_nodes"), s.handleFindNodes},
		{buildFindNodesTool("open_nodes"), s.handleFindNodes},
		{buildVectorSearchTool(), s.handleVectorSearch},
		{buildGraphStatsTool(), s.handleGraphStats},
	}
	if extractor != nil {
		handlers = append(handlers, struct {
			tool    mcpgo.Tool
			handler mcpserver.ToolHandlerFunc
		}{buildExtractKnowledgeTool(), s.handleExtractKnowledge})
	}
	for _, h := range handlers {
		t := adaptTool(h.tool, s.mode)
		s.tools = append(s.tools, t)
		mcpSrv.AddTool(t, h.handler)
	}

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// Mode returns the effective schema compatibility mode.
func (s *Server) Mode() string {
	return s.mode
}

// Tools returns the registered tool definitions in registration order.
func (s *Server) Tools() []mcpgo.Tool {
	return append([]mcpgo.Tool(nil), s.tools...)
}

// HandleCreateEntities is the exported handler for the "create_entities" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleCreateEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleCreateEntities(ctx, req)
}

// HandleCreateRelations is the exported handler for the "create_relations" tool.
func (s *Server) HandleCreateRelations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleCreateRelations(ctx, req)
}

// HandleAddObservations is the exported handler for the "add_observations" tool.
func (s *Server) HandleAddObservations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAddObservations(ctx, req)
}

// HandleDeleteEntities is the exported handler for the "delete_entities" tool.
func (s *Server) HandleDeleteEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleDeleteEntities(ctx, req)
}

// HandleDeleteObservations is the exported handler for the "delete_observations" tool.
func (s *Server) HandleDeleteObservations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleDeleteObservations(ctx, req)
}

// HandleDeleteRelations is the exported handler for the "delete_relations" tool.
func (s *Server) HandleDeleteRelations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleDeleteRelations(ctx, req)
}

// HandleReadGraph is the exported handler for the "read_graph" tool.
func (s *Server) HandleReadGraph(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleReadGraph(ctx, req)
}

// HandleSearchNodes is the exported handler for the "search_nodes" tool.
func (s *Server) HandleSearchNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearchNodes(ctx, req)
}

// HandleFindNodes is the exported handler for the "find_nodes" and "open_nodes" tools.
func (s *Server) HandleFindNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleFindNodes(ctx, req)
}

// HandleVectorSearch is the exported handler for the "vector_search" tool.
func (s *Server) HandleVectorSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleVectorSearch(ctx, req)
}

// HandleGraphStats is the exported handler for the "graph_stats" tool.
func (s *Server) HandleGraphStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleGraphStats(ctx, req)
}

// HandleExtractKnowledge is the exported handler for the "extract_knowledge" tool.
func (s *Server) HandleExtractKnowledge(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleExtractKnowledge(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// toolError maps a service error to a structured tool error.
func toolError(op string, err error) *mcpgo.CallToolResult {
	if models.IsValidation(err) {
		return mcpgo.NewToolResultErrorf("invalid input: %s", err.Error())
	}
	return mcpgo.NewToolResultErrorf("%s failed: %s", op, err.Error())
}

func (s *Server) unavailable() *mcpgo.CallToolResult {
	return mcpgo.NewToolResultError("knowledge graph is unavailable")
}

// --- tool handlers ---

type entitiesArgs struct {
	Entities []models.Entity `json:"entities"`
}

type relationsArgs struct {
	Relations []models.Relation `json:"relations"`
}

type observationsArgs struct {
	Observations []models.ObservationAddition `json:"observations"`
}

type deletionsArgs struct {
	Deletions []models.ObservationDeletion `json:"deletions"`
}

func (s *Server) handleCreateEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	var args entitiesArgs
	if err := req.BindArguments(&args); err != nil {
		return mcpgo.NewToolResultErrorf("invalid arguments: %s", err.Error()), nil
	}
	if len(args.Entities) == 0 {
		return mcpgo.NewToolResultError("entities must contain at least one entity"), nil
	}
	for i, e := range args.Entities {
		if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Type) == "" {
			return mcpgo.NewToolResultErrorf("entities[%d]: name and type are required", i), nil
		}
	}

	res, err := s.graph.CreateEntities(ctx, args.Entities)
	if err != nil {
		return toolError("create_entities", err), nil
	}
	s.logger.Info("mcp: create_entities", "created", len(res.Entities), "failed", len(res.Failed))
	return toolResultJSON(res)
}

func (s *Server) handleCreateRelations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	var args relationsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcpgo.NewToolResultErrorf("invalid arguments: %s", err.Error()), nil
	}
	res, err := s.graph.CreateRelations(ctx, args.Relations)
	if err != nil {
		return toolError("create_relations", err), nil
	}
	return toolResultJSON(res)
}

func (s *Server) handleAddObservations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	var args observationsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcpgo.NewToolResultErrorf("invalid arguments: %s", err.Error()), nil
	}
	res, err := s.graph.AddObservations(ctx, args.Observations)
	if err != nil {
		return toolError("add_observations", err), nil
	}
	return toolResultJSON(res)
}

func (s *Server) handleDeleteEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	names := req.GetStringSlice("entityNames", nil)
	n, err := s.graph.DeleteEntities(ctx, names)
	if err != nil {
		return toolError("delete_entities", err), nil
	}
	s.logger.Info("mcp: delete_entities", "names", len(names), "deleted", n)
	return toolResultJSON(map[string]any{"deleted": n})
}

func (s *Server) handleDeleteObservations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	var args deletionsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcpgo.NewToolResultErrorf("invalid arguments: %s", err.Error()), nil
	}
	n, err := s.graph.DeleteObservations(ctx, args.Deletions)
	if err != nil {
		return toolError("delete_observations", err), nil
	}
	return toolResultJSON(map[string]any{"updated": n})
}

func (s *Server) handleDeleteRelations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	var args relationsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcpgo.NewToolResultErrorf("invalid arguments: %s", err.Error()), nil
	}
	n, err := s.graph.DeleteRelations(ctx, args.Relations)
	if err != nil {
		return toolError("delete_relations", err), nil
	}
	return toolResultJSON(map[string]any{"deleted": n})
}

func (s *Server) handleReadGraph(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	g, err := s.graph.ReadGraph(ctx)
	if err != nil {
		return toolError("read_graph", err), nil
	}
	return toolResultJSON(g)
}

func (s *Server) handleSearchNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	query := req.GetString("query", "")
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return toolResultJSON(s.graph.SearchNodes(ctx, query, limit))
}

func (s *Server) handleFindNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	names := req.GetStringSlice("names", nil)
	g, err := s.graph.FindNodes(ctx, names)
	if err != nil {
		return toolError("find_nodes", err), nil
	}
	return toolResultJSON(g)
}

func (s *Server) handleVectorSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcpgo.NewToolResultError("query is required and must not be empty"), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit < 1 {
		return mcpgo.NewToolResultError("limit must be at least 1"), nil
	}
	threshold := req.GetFloat("threshold", defaultThreshold)

	res, err := s.graph.VectorSearch(ctx, search.VectorQuery{
		Query:     query,
		Mode:      req.GetString("mode", string(models.SearchModeContent)),
		Limit:     limit,
		Threshold: &threshold,
	})
	if err != nil {
		return toolError("vector_search", err), nil
	}
	return toolResultJSON(res)
}

func (s *Server) handleGraphStats(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	stats, err := s.graph.Stats(ctx)
	if err != nil {
		return toolError("graph_stats", err), nil
	}
	return toolResultJSON(stats)
}

func (s *Server) handleExtractKnowledge(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.graph == nil {
		return s.unavailable(), nil
	}
	if s.extractor == nil {
		return mcpgo.NewToolResultError("knowledge extraction is not configured"), nil
	}
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcpgo.NewToolResultError("text is required and must not be empty"), nil
	}

	g, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return toolError("extract_knowledge", err), nil
	}
	if !req.GetBool("store", true) {
		return toolResultJSON(g)
	}
	res, err := s.graph.Import(ctx, g)
	if err != nil {
		return toolError("extract_knowledge", err), nil
	}
	s.logger.Info("mcp: extract_knowledge stored graph",
		"entities", len(res.Entities.Entities), "relations", len(res.Relations.Relations))
	return toolResultJSON(map[string]any{"extracted": g, "stored": res})
}
