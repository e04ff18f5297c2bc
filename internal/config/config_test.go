package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validCfg returns a fully-valid Config for mutation testing.
func validCfg() *Config {
	return &Config{
		Neo4j:     Neo4jConfig{URI: "bolt://localhost:7687", Username: "neo4j", Password: "secret", Database: "neo4j"},
		Embedding: EmbeddingConfig{Provider: ProviderOllama, BaseURL: "http://localhost:11434", Model: "bge-large"},
		Index:     IndexConfig{Dimension: 1024, Similarity: "cosine", BatchSize: 16, Workers: 4},
		Search:    SearchConfig{Limit: 10, Threshold: 0.7, MaxRelated: 5, MaxRelations: 10},
		Breaker:   BreakerConfig{Enabled: true, MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenRequests: 1},
		API:       APIConfig{ListenAddr: ":8080", RateLimit: 50, RateBurst: 100},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validCfg().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty uri", func(c *Config) { c.Neo4j.URI = "" }, "neo4j.uri"},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "magic" }, "embedding.provider"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = ProviderOpenAI }, "embedding.api_key"},
		{"ollama without url", func(c *Config) { c.Embedding.BaseURL = "" }, "embedding.base_url"},
		{"zero dimension", func(c *Config) { c.Index.Dimension = 0 }, "index.dimension"},
		{"bad similarity", func(c *Config) { c.Index.Similarity = "dot" }, "index.similarity"},
		{"zero batch", func(c *Config) { c.Index.BatchSize = 0 }, "index.batch_size"},
		{"zero workers", func(c *Config) { c.Index.Workers = 0 }, "index.workers"},
		{"zero limit", func(c *Config) { c.Search.Limit = 0 }, "search.limit"},
		{"breaker without failures", func(c *Config) { c.Breaker.MaxFailures = 0 }, "breaker.max_failures"},
		{"negative rate", func(c *Config) { c.API.RateLimit = -1 }, "api.rate_limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validCfg()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidate_MockProviderNeedsNothing(t *testing.T) {
	cfg := validCfg()
	cfg.Embedding = EmbeddingConfig{Provider: ProviderMock}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ThresholdNotRangeChecked(t *testing.T) {
	cfg := validCfg()
	cfg.Search.Threshold = 1.5
	assert.NoError(t, cfg.Validate())
}

func TestCompatibility(t *testing.T) {
	cfg := validCfg()
	for in, want := range map[string]string{
		"":          CompatClaude,
		"Gemini":    CompatGemini,
		" openai ":  CompatOpenAI,
		"universal": CompatUniversal,
		"cohere":    "",
	} {
		cfg.MCP.Compatibility = in
		assert.Equal(t, want, cfg.Compatibility(), in)
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "***", maskAPIKey("short"))
	assert.Equal(t, "sk-a****wxyz", maskAPIKey("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.NotContains(t, ClaudeConfig{APIKey: "sk-ant-0123456789"}.String(), "0123456")
	assert.NotContains(t, Neo4jConfig{Password: "hunter2hunter2"}.String(), "hunter2hunter2")
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("NEO4J_PASSWORD", "from-env")
	t.Setenv("MCP_COMPATIBILITY", "gemini")
	t.Setenv("CORTEX_GRAPH_SEARCH_THRESHOLD", "0.55")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "neo4j://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "from-env", cfg.Neo4j.Password)
	assert.Equal(t, CompatGemini, cfg.Compatibility())
	assert.InDelta(t, 0.55, cfg.Search.Threshold, 1e-9)
	assert.Equal(t, DefaultDimension, cfg.Index.Dimension)
	assert.Equal(t, DefaultBatchSize, cfg.Index.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
	assert.True(t, cfg.Backfill.OnStartup)
}

func TestLoad_ConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".cortex-graph")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
embedding:
  provider: mock
index:
  dimension: 384
  batch_size: 8
api:
  auth_token: file-token
`), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Index.Dimension)
	assert.Equal(t, 8, cfg.Index.BatchSize)
	assert.Equal(t, "file-token", cfg.API.AuthToken)
}
