package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-graph/internal/api"
	"github.com/ajitpratap0/cortex-graph/internal/embedder"
	"github.com/ajitpratap0/cortex-graph/internal/indexing"
	"github.com/ajitpratap0/cortex-graph/internal/memory"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

const testDim = 16

func newTestServer(t *testing.T, opts api.Options) (*httptest.Server, *store.MockStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.NewMockStore()
	svc, err := memory.New(context.Background(), st, embedder.NewMockEmbedder(testDim),
		memory.Options{Index: indexing.Options{Dimension: testDim}}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	srv := api.NewServer(svc, logger, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func doRequest(t *testing.T, method, url string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(context.Background(), method, url, body)
	} else {
		req, err = http.NewRequestWithContext(context.Background(), method, url, http.NoBody)
	}
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func seed(t *testing.T, baseURL string) {
	t.Helper()
	resp := doRequest(t, http.MethodPost, baseURL+"/v1/entities", jsonBody(t, map[string]any{
		"entities": []models.Entity{
			{Name: "Ada", Type: "Person", Observations: []string{"wrote the first program"}},
			{Name: "Analytical Engine", Type: "Machine", Observations: []string{"mechanical computer"}},
		},
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{AuthToken: "secret"})

	resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var h memory.Health
	decodeInto(t, resp, &h)
	assert.True(t, h.OK())
	assert.Equal(t, testDim, h.Dimension)
}

func TestRequestID_Propagated(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/healthz", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{AuthToken: "secret"})

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/graph", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/graph", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/graph", nil, "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{RateLimit: 0.001, RateBurst: 2})

	for range 2 {
		resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestCreateEntities(t *testing.T) {
	ts, st := newTestServer(t, api.Options{})
	seed(t, ts.URL)

	ctx := context.Background()
	e, err := st.GetEntity(ctx, models.MergeKey{Name: "Ada", Type: "Person"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wrote the first program"}, e.Observations)

	n, err := st.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateEntities_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{})

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/entities", bytes.NewBufferString("{not json"), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/entities", jsonBody(t, map[string]any{"entities": []any{}}), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/entities", jsonBody(t, map[string]any{
		"entities": []models.Entity{{Name: "x", Type: "T", Labels: []string{"a", "b", "c", "d"}}},
	}), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelationsAndObservations(t *testing.T) {
	ts, st := newTestServer(t, api.Options{})
	seed(t, ts.URL)
	ctx := context.Background()

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/relations", jsonBody(t, map[string]any{
		"relations": []models.Relation{
			{Source: "Ada", Target: "Analytical Engine", RelationType: "programmed for"},
			{Source: "Ada", Target: "Nobody", RelationType: "knows"},
		},
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rel memory.RelationResult
	decodeInto(t, resp, &rel)
	require.Len(t, rel.Relations, 1)
	assert.Equal(t, "programmed_for", rel.Relations[0].RelationType)
	assert.Len(t, rel.Skipped, 1)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/observations", jsonBody(t, map[string]any{
		"observations": []models.ObservationAddition{{EntityName: "Ada", Contents: []string{"countess"}}},
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	e, err := st.GetEntity(ctx, models.MergeKey{Name: "Ada", Type: "Person"})
	require.NoError(t, err)
	assert.Contains(t, e.Observations, "countess")

	resp = doRequest(t, http.MethodDelete, ts.URL+"/v1/observations", jsonBody(t, map[string]any{
		"deletions": []models.ObservationDeletion{{EntityName: "Ada", Observations: []string{"countess"}}},
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	e, err = st.GetEntity(ctx, models.MergeKey{Name: "Ada", Type: "Person"})
	require.NoError(t, err)
	assert.NotContains(t, e.Observations, "countess")

	resp = doRequest(t, http.MethodDelete, ts.URL+"/v1/relations", jsonBody(t, map[string]any{
		"relations": []models.Relation{{Source: "Ada", Target: "Analytical Engine", RelationType: "programmed_for"}},
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var del map[string]int64
	decodeInto(t, resp, &del)
	assert.Equal(t, int64(1), del["deleted"])
}

func TestReadFindDelete(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{})
	seed(t, ts.URL)

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/graph", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g models.KnowledgeGraph
	decodeInto(t, resp, &g)
	assert.Len(t, g.Entities, 2)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/nodes/find", jsonBody(t, map[string]any{"names": []string{"Ada"}}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found models.KnowledgeGraph
	decodeInto(t, resp, &found)
	require.Len(t, found.Entities, 1)
	assert.Equal(t, "Ada", found.Entities[0].Name)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/v1/entities", jsonBody(t, map[string]any{"names": []string{"Ada"}}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var del map[string]int64
	decodeInto(t, resp, &del)
	assert.Equal(t, int64(1), del["deleted"])

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats models.GraphStats
	decodeInto(t, resp, &stats)
	assert.Equal(t, int64(1), stats.Entities)
}

func TestSearch(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{})
	seed(t, ts.URL)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/search", jsonBody(t, map[string]any{"query": "Ada"}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res models.SearchResult
	decodeInto(t, resp, &res)
	require.NotEmpty(t, res.Entities)
	assert.Equal(t, "Ada", res.Entities[0].Name)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/search/vector", jsonBody(t, map[string]any{
		"query": "mechanical computer", "mode": "observations", "threshold": -1.0,
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var vres models.SearchResult
	decodeInto(t, resp, &vres)
	assert.Equal(t, "vector:observations", vres.Strategy)
	assert.NotEmpty(t, vres.Entities)
}

func TestVectorSearch_Invalid(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{})

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/search/vector", jsonBody(t, map[string]any{"query": " "}), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/search/vector", jsonBody(t, map[string]any{"query": "x", "mode": "bogus"}), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBackfill(t *testing.T) {
	ts, st := newTestServer(t, api.Options{})
	st.AddLegacyNode(models.Entity{Name: "Old", Type: "Legacy", Observations: []string{"pre-index"}})

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/backfill", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	n, err := st.CountUnindexed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, api.Options{AuthToken: "secret"})

	resp := doRequest(t, http.MethodGet, ts.URL+"/metrics", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
