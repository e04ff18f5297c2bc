package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 10000

// CachedEmbedder wraps an Embedder with an LRU cache keyed by a hash of the text.
// Returned vectors are copies, so callers may modify them freely.
type CachedEmbedder struct {
	base   Embedder
	cache  *lru.Cache[string, []float32]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedEmbedder wraps base with a cache holding up to size vectors (0 = 10000).
func NewCachedEmbedder(base Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachedEmbedder{base: base, cache: cache}, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector or computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return copyVector(v), nil
	}
	c.misses.Add(1)
	v, err := c.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, copyVector(v))
	return v, nil
}

// EmbedBatch serves hits from the cache and sends only misses to the base
// embedder, in one call, preserving input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.cache.Get(cacheKey(t)); ok {
			c.hits.Add(1)
			out[i] = copyVector(v)
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.base.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, providerError("cached embedder", fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(vecs)))
	}
	for j, v := range vecs {
		out[missIdx[j]] = v
		c.cache.Add(cacheKey(missTexts[j]), copyVector(v))
	}
	return out, nil
}

// Dimension delegates to the wrapped embedder.
func (c *CachedEmbedder) Dimension() int {
	return c.base.Dimension()
}

// CacheStats returns hit and miss counts and the current cache size.
func (c *CachedEmbedder) CacheStats() (hits, misses uint64, size int) {
	return c.hits.Load(), c.misses.Load(), c.cache.Len()
}

func copyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	return append(make([]float32, 0, len(v)), v...)
}
