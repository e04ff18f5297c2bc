package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-graph/internal/config"
	"github.com/ajitpratap0/cortex-graph/internal/embedder"
	"github.com/ajitpratap0/cortex-graph/internal/extract"
	"github.com/ajitpratap0/cortex-graph/internal/indexing"
	"github.com/ajitpratap0/cortex-graph/internal/memory"
	"github.com/ajitpratap0/cortex-graph/internal/search"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "cortex-graph",
		Short: "Cortex Graph: knowledge-graph memory with vector search for AI agents",
		Long:  "Cortex Graph stores entities, observations and relations in Neo4j and keeps three embedding spaces per entity for semantic search.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		mcpCmd(),
		searchCmd(),
		entitiesCmd(),
		relationsCmd(),
		observeCmd(),
		backfillCmd(),
		healthCmd(),
		statsCmd(),
		exportCmd(),
		importCmd(),
		ingestCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newEmbedder builds the configured provider wrapped in the query cache and
// the circuit breaker.
func newEmbedder(logger *slog.Logger) (embedder.Embedder, error) {
	var base embedder.Embedder
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		base = embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Index.Dimension, logger)
	case config.ProviderMock:
		base = embedder.NewMockEmbedder(cfg.Index.Dimension)
	default:
		base = embedder.NewOllamaEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Index.Dimension, logger)
	}

	emb := base
	if cfg.Breaker.Enabled {
		emb = embedder.NewBreakerEmbedder(emb, embedder.BreakerConfig{
			MaxFailures:         cfg.Breaker.MaxFailures,
			Timeout:             cfg.Breaker.Timeout,
			HalfOpenMaxRequests: cfg.Breaker.HalfOpenRequests,
		}, logger)
	}
	if cfg.Embedding.CacheSize > 0 {
		cached, err := embedder.NewCachedEmbedder(emb, cfg.Embedding.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating embedding cache: %w", err)
		}
		emb = cached
	}
	return emb, nil
}

func newStore(ctx context.Context, logger *slog.Logger) (*store.Neo4jStore, error) {
	return store.NewNeo4jStore(ctx, store.Neo4jOptions{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, logger)
}

// newService connects to the store and builds the knowledge-graph service.
// The caller owns the returned service and must Close it.
func newService(ctx context.Context, logger *slog.Logger) (*memory.Service, error) {
	emb, err := newEmbedder(logger)
	if err != nil {
		return nil, err
	}
	st, err := newStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	svc, err := memory.New(ctx, st, emb, memory.Options{
		Index: indexing.Options{
			Dimension:        cfg.Index.Dimension,
			Similarity:       cfg.Index.Similarity,
			BatchSize:        cfg.Index.BatchSize,
			Workers:          cfg.Index.Workers,
			FulltextIndex:    cfg.Index.FulltextIndex,
			ContentIndex:     cfg.Index.ContentIndex,
			ObservationIndex: cfg.Index.ObservationIndex,
			IdentityIndex:    cfg.Index.IdentityIndex,
		},
		Search: search.Options{
			Limit:        cfg.Search.Limit,
			Threshold:    &cfg.Search.Threshold,
			MaxRelated:   cfg.Search.MaxRelated,
			MaxRelations: cfg.Search.MaxRelations,
		},
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return svc, nil
}

// newExtractor returns nil when no Anthropic key is configured.
func newExtractor(logger *slog.Logger) extract.Extractor {
	if cfg.Claude.APIKey == "" {
		return nil
	}
	return extract.NewClaudeExtractor(cfg.Claude.APIKey, cfg.Claude.Model, logger)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
