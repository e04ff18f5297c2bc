package mcp_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-graph/internal/embedder"
	"github.com/ajitpratap0/cortex-graph/internal/indexing"
	cortexmcp "github.com/ajitpratap0/cortex-graph/internal/mcp"
	"github.com/ajitpratap0/cortex-graph/internal/memory"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

const dim = 16

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubExtractor returns a fixed graph.
type stubExtractor struct{ g *models.KnowledgeGraph }

func (s stubExtractor) Extract(context.Context, string) (*models.KnowledgeGraph, error) {
	return s.g, nil
}

// newMCPServer returns a Server backed by a MockStore and mock embedder.
func newMCPServer(t *testing.T, mode string) (*cortexmcp.Server, *store.MockStore) {
	t.Helper()
	ms := store.NewMockStore()
	svc, err := memory.New(context.Background(), ms, embedder.NewMockEmbedder(dim),
		memory.Options{Index: indexing.Options{Dimension: dim}}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	ex := stubExtractor{g: &models.KnowledgeGraph{
		Entities:  []models.Entity{{Name: "Ada", Type: "Person", Observations: []string{"wrote the first program"}}},
		Relations: []models.Relation{},
	}}
	return cortexmcp.NewServer(svc, ex, mode, quietLogger()), ms
}

// makeReq builds a CallToolRequest with the given arguments.
func makeReq(toolName string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	return req
}

// textContent extracts the first TextContent string from a CallToolResult.
func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content item")
	tc, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func decode(t *testing.T, result *mcpgo.CallToolResult, v any) {
	t.Helper()
	require.False(t, result.IsError, textContent(t, result))
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), v))
}

func seed(t *testing.T, srv *cortexmcp.Server) {
	t.Helper()
	res, err := srv.HandleCreateEntities(context.Background(), makeReq("create_entities", map[string]any{
		"entities": []any{
			map[string]any{"name": "Ethereum", "type": "Blockchain", "observations": []any{"smart contracts"}, "labels": []any{"crypto"}},
			map[string]any{"name": "Vitalik Buterin", "type": "Person", "observations": []any{"created Ethereum"}},
		},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, textContent(t, res))
}

func TestCreateEntities_ReturnsMergedState(t *testing.T) {
	srv, _ := newMCPServer(t, "")
	seed(t, srv)

	res, err := srv.HandleCreateEntities(context.Background(), makeReq("create_entities", map[string]any{
		"entities": []any{map[string]any{"name": "Ethereum", "type": "Blockchain", "observations": []any{"proof of stake"}}},
	}))
	require.NoError(t, err)
	var out memory.CreateResult
	decode(t, res, &out)
	require.Len(t, out.Entities, 1)
	assert.Equal(t, []string{"smart contracts", "proof of stake"}, out.Entities[0].Observations)
	assert.Equal(t, []string{"Crypto"}, out.Entities[0].Labels)
}

func TestCreateEntities_ValidationIsToolError(t *testing.T) {
	srv, ms := newMCPServer(t, "")
	res, err := srv.HandleCreateEntities(context.Background(), makeReq("create_entities", map[string]any{
		"entities": []any{map[string]any{"name": "x", "type": "y", "labels": []any{"a", "b", "c", "d"}}},
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "invalid input")

	g, err := ms.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, g.Entities)

	res, err = srv.HandleCreateEntities(context.Background(), makeReq("create_entities", map[string]any{"entities": []any{}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRelationsAndObservations(t *testing.T) {
	srv, _ := newMCPServer(t, "")
	seed(t, srv)
	ctx := context.Background()

	res, err := srv.HandleCreateRelations(ctx, makeReq("create_relations", map[string]any{
		"relations": []any{map[string]any{"source": "Vitalik Buterin", "target": "Ethereum", "relationType": "created"}},
	}))
	require.NoError(t, err)
	var rels memory.RelationResult
	decode(t, res, &rels)
	assert.Len(t, rels.Relations, 1)

	res, err = srv.HandleAddObservations(ctx, makeReq("add_observations", map[string]any{
		"observations": []any{map[string]any{"entityName": "Ethereum", "contents": []any{"launched 2015"}}},
	}))
	require.NoError(t, err)
	var added []models.ObservationResult
	decode(t, res, &added)
	require.Len(t, added, 1)
	assert.Equal(t, []string{"launched 2015"}, added[0].AddedObservations)

	res, err = srv.HandleDeleteObservations(ctx, makeReq("delete_observations", map[string]any{
		"deletions": []any{map[string]any{"entityName": "Ethereum", "observations": []any{"launched 2015"}}},
	}))
	require.NoError(t, err)
	var updated map[string]int
	decode(t, res, &updated)
	assert.Equal(t, 1, updated["updated"])

	res, err = srv.HandleDeleteRelations(ctx, makeReq("delete_relations", map[string]any{
		"relations": []any{map[string]any{"source": "Vitalik Buterin", "target": "Ethereum", "relationType": "created"}},
	}))
	require.NoError(t, err)
	var deleted map[string]int
	decode(t, res, &deleted)
	assert.Equal(t, 1, deleted["deleted"])
}

func TestReadFindAndDelete(t *testing.T) {
	srv, _ := newMCPServer(t, "")
	seed(t, srv)
	ctx := context.Background()

	res, err := srv.HandleFindNodes(ctx, makeReq("open_nodes", map[string]any{"names": []any{"Ethereum"}}))
	require.NoError(t, err)
	var g models.KnowledgeGraph
	decode(t, res, &g)
	assert.Len(t, g.Entities, 1)

	res, err = srv.HandleDeleteEntities(ctx, makeReq("delete_entities", map[string]any{"entityNames": []any{"Ethereum"}}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = srv.HandleReadGraph(ctx, makeReq("read_graph", nil))
	require.NoError(t, err)
	decode(t, res, &g)
	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Vitalik Buterin", g.Entities[0].Name)
}

func TestSearchTools(t *testing.T) {
	srv, _ := newMCPServer(t, "")
	seed(t, srv)
	ctx := context.Background()

	res, err := srv.HandleSearchNodes(ctx, makeReq("search_nodes", map[string]any{"query": "Ethereum"}))
	require.NoError(t, err)
	var sr models.SearchResult
	decode(t, res, &sr)
	assert.Equal(t, "exact", sr.Strategy)

	res, err = srv.HandleVectorSearch(ctx, makeReq("vector_search", map[string]any{"query": "smart contracts", "threshold": -1.0, "mode": "observations"}))
	require.NoError(t, err)
	decode(t, res, &sr)
	assert.Equal(t, "vector:observations", sr.Strategy)
	assert.NotEmpty(t, sr.Entities)

	res, err = srv.HandleVectorSearch(ctx, makeReq("vector_search", map[string]any{"query": "x", "mode": "bogus"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "invalid input")

	res, err = srv.HandleVectorSearch(ctx, makeReq("vector_search", map[string]any{"query": "x", "limit": 0}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGraphStatsAndExtract(t *testing.T) {
	srv, _ := newMCPServer(t, "")
	ctx := context.Background()

	res, err := srv.HandleExtractKnowledge(ctx, makeReq("extract_knowledge", map[string]any{"text": "Ada wrote the first program"}))
	require.NoError(t, err)
	require.False(t, res.IsError, textContent(t, res))

	res, err = srv.HandleGraphStats(ctx, makeReq("graph_stats", nil))
	require.NoError(t, err)
	var stats models.GraphStats
	decode(t, res, &stats)
	assert.Equal(t, int64(1), stats.Entities)

	res, err = srv.HandleExtractKnowledge(ctx, makeReq("extract_knowledge", map[string]any{"text": "   "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNilGraphReturnsToolError(t *testing.T) {
	srv := cortexmcp.NewServer(nil, nil, "", quietLogger())
	res, err := srv.HandleReadGraph(context.Background(), makeReq("read_graph", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	for _, tool := range srv.Tools() {
		assert.NotEqual(t, "extract_knowledge", tool.Name)
	}
}

func findTool(t *testing.T, srv *cortexmcp.Server, name string) mcpgo.Tool {
	t.Helper()
	for _, tool := range srv.Tools() {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not registered", name)
	return mcpgo.Tool{}
}

func schemaJSON(t *testing.T, tool mcpgo.Tool) string {
	t.Helper()
	b, err := json.Marshal(tool.InputSchema)
	require.NoError(t, err)
	return string(b)
}

func TestCompatibilityModes(t *testing.T) {
	claude, _ := newMCPServer(t, "claude")
	s := schemaJSON(t, findTool(t, claude, "vector_search"))
	assert.Contains(t, s, `"enum"`)
	assert.Contains(t, s, `"default"`)
	assert.Contains(t, schemaJSON(t, findTool(t, claude, "create_entities")), `"maxItems"`)
	assert.Empty(t, findTool(t, claude, "read_graph").InputSchema.Properties)

	gemini, _ := newMCPServer(t, "gemini")
	s = schemaJSON(t, findTool(t, gemini, "vector_search"))
	assert.NotContains(t, s, `"enum"`)
	assert.NotContains(t, s, `"default"`)
	assert.Contains(t, s, "Valid options: content, observations, identity")
	ce := schemaJSON(t, findTool(t, gemini, "create_entities"))
	assert.NotContains(t, ce, `"maxItems"`)
	assert.NotContains(t, ce, `"minItems"`)
	assert.Contains(t, findTool(t, gemini, "read_graph").InputSchema.Properties, "random_string")

	openai, _ := newMCPServer(t, "openai")
	s = schemaJSON(t, findTool(t, openai, "vector_search"))
	assert.Contains(t, s, `"enum"`)
	assert.NotContains(t, s, `"default"`)
	assert.Contains(t, s, "(default: 0.7)")
	assert.Empty(t, findTool(t, openai, "read_graph").InputSchema.Properties)

	universal, _ := newMCPServer(t, "universal")
	s = schemaJSON(t, findTool(t, universal, "vector_search"))
	assert.NotContains(t, s, `"enum"`)
	assert.NotContains(t, s, `"default"`)

	unknown, _ := newMCPServer(t, "cohere")
	assert.Equal(t, cortexmcp.ModeClaude, unknown.Mode())
}

func TestParseMode(t *testing.T) {
	m, ok := cortexmcp.ParseMode("Universal")
	assert.True(t, ok)
	assert.Equal(t, cortexmcp.ModeUniversal, m)
	m, ok = cortexmcp.ParseMode("nope")
	assert.False(t, ok)
	assert.Equal(t, cortexmcp.ModeClaude, m)
}
