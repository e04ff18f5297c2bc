package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultDimension is the vector dimension of the default embedding model.
	DefaultDimension = 1024

	// DefaultThreshold is the default minimum similarity for vector search hits.
	DefaultThreshold = 0.7

	// DefaultBatchSize is the number of entities embedded per backfill batch.
	DefaultBatchSize = 16
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// MCP schema compatibility modes.
const (
	CompatClaude    = "claude"
	CompatGemini    = "gemini"
	CompatOpenAI    = "openai"
	CompatUniversal = "universal"
)

// Config holds all configuration for cortex-graph.
type Config struct {
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Search    SearchConfig    `mapstructure:"search"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Claude    ClaudeConfig    `mapstructure:"claude"`
	API       APIConfig       `mapstructure:"api"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// String returns a safe representation with the password masked.
func (c Neo4jConfig) String() string {
	return fmt.Sprintf("Neo4jConfig{URI:%s, Username:%s, Password:%s, Database:%s}",
		c.URI, c.Username, maskAPIKey(c.Password), c.Database)
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	CacheSize int    `mapstructure:"cache_size"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Dimension        int    `mapstructure:"dimension"`
	Similarity       string `mapstructure:"similarity"`
	BatchSize        int    `mapstructure:"batch_size"`
	Workers          int    `mapstructure:"workers"`
	FulltextIndex    string `mapstructure:"fulltext_index"`
	ContentIndex     string `mapstructure:"content_index"`
	ObservationIndex string `mapstructure:"observation_index"`
	IdentityIndex    string `mapstructure:"identity_index"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	Limit        int     `mapstructure:"limit"`
	Threshold    float64 `mapstructure:"threshold"`
	MaxRelated   int     `mapstructure:"max_related"`
	MaxRelations int     `mapstructure:"max_relations"`
}

// BackfillConfig controls when unindexed entities are migrated.
type BackfillConfig struct {
	OnStartup bool `mapstructure:"on_startup"`
}

// BreakerConfig configures the circuit breaker around the embedding provider.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxFailures      uint32        `mapstructure:"max_failures"`
	Timeout          time.Duration `mapstructure:"timeout"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests"`
}

// ClaudeConfig holds Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", maskAPIKey(c.APIKey), c.Model)
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string  `mapstructure:"listen_addr"`
	AuthToken  string  `mapstructure:"auth_token"`
	RateLimit  float64 `mapstructure:"rate_limit"`
	RateBurst  int     `mapstructure:"rate_burst"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Compatibility string `mapstructure:"compatibility"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".cortex-graph"))
	v.AddConfigPath(".")

	// Environment variables: CORTEX_GRAPH_SEARCH_THRESHOLD -> search.threshold
	v.SetEnvPrefix("CORTEX_GRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by the graph engine and provider tooling.
	_ = v.BindEnv("neo4j.uri", "CORTEX_GRAPH_NEO4J_URI", "NEO4J_URI", "NEO4J_URL")
	_ = v.BindEnv("neo4j.username", "CORTEX_GRAPH_NEO4J_USERNAME", "NEO4J_USERNAME")
	_ = v.BindEnv("neo4j.password", "CORTEX_GRAPH_NEO4J_PASSWORD", "NEO4J_PASSWORD")
	_ = v.BindEnv("neo4j.database", "CORTEX_GRAPH_NEO4J_DATABASE", "NEO4J_DATABASE")
	_ = v.BindEnv("claude.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("embedding.api_key", "CORTEX_GRAPH_EMBEDDING_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("mcp.compatibility", "CORTEX_GRAPH_MCP_COMPATIBILITY", "MCP_COMPATIBILITY")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK; use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("embedding.provider", ProviderOllama)
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "bge-large")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("index.dimension", DefaultDimension)
	v.SetDefault("index.similarity", "cosine")
	v.SetDefault("index.batch_size", DefaultBatchSize)
	v.SetDefault("index.workers", 4)
	v.SetDefault("index.fulltext_index", "search")
	v.SetDefault("index.content_index", "memory_content_embeddings")
	v.SetDefault("index.observation_index", "memory_observation_embeddings")
	v.SetDefault("index.identity_index", "memory_identity_embeddings")

	v.SetDefault("search.limit", 10)
	v.SetDefault("search.threshold", DefaultThreshold)
	v.SetDefault("search.max_related", 5)
	v.SetDefault("search.max_relations", 10)

	v.SetDefault("backfill.on_startup", true)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.half_open_requests", 1)

	v.SetDefault("claude.model", "claude-haiku-4-5-20251001")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")
	v.SetDefault("api.rate_limit", 50.0)
	v.SetDefault("api.rate_burst", 100)

	v.SetDefault("mcp.compatibility", CompatClaude)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri must not be empty")
	}
	switch c.Embedding.Provider {
	case ProviderOllama:
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.base_url must not be empty for provider %q", c.Embedding.Provider)
		}
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key (or OPENAI_API_KEY) is required for provider %q", c.Embedding.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("embedding.provider must be one of ollama, openai, mock (got %q)", c.Embedding.Provider)
	}
	if c.Embedding.CacheSize < 0 {
		return fmt.Errorf("embedding.cache_size must be >= 0")
	}
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("index.dimension must be greater than 0")
	}
	if c.Index.Similarity != "cosine" && c.Index.Similarity != "euclidean" {
		return fmt.Errorf("index.similarity must be cosine or euclidean (got %q)", c.Index.Similarity)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be greater than 0")
	}
	if c.Index.Workers <= 0 {
		return fmt.Errorf("index.workers must be greater than 0")
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be greater than 0")
	}
	if c.Search.MaxRelated < 0 || c.Search.MaxRelations < 0 {
		return fmt.Errorf("search.max_related and search.max_relations must be >= 0")
	}
	if c.Breaker.Enabled && c.Breaker.MaxFailures == 0 {
		return fmt.Errorf("breaker.max_failures must be greater than 0 when the breaker is enabled")
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return fmt.Errorf("api.rate_limit and api.rate_burst must be >= 0")
	}
	return nil
}

// Compatibility returns the MCP schema mode, or "" when the configured value is
// unknown so the caller can warn and fall back.
func (c *Config) Compatibility() string {
	switch m := strings.ToLower(strings.TrimSpace(c.MCP.Compatibility)); m {
	case CompatClaude, CompatGemini, CompatOpenAI, CompatUniversal:
		return m
	case "":
		return CompatClaude
	default:
		return ""
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
