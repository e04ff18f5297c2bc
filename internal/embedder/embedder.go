package embedder

import (
	"context"
	"errors"
	"fmt"
)

// ErrProvider wraps every failure reported by an embedding provider.
var ErrProvider = errors.New("embedding provider error")

// ErrCircuitOpen is returned while the provider circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("embedding circuit breaker is open")

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns vector embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// providerError tags err with ErrProvider unless it already carries it.
func providerError(provider string, err error) error {
	if errors.Is(err, ErrProvider) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrProvider, err)
}
