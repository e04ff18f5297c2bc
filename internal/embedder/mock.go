package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// MockEmbedder is a deterministic, dependency-free Embedder for tests and
// offline use. Each lower-cased word is hashed into a bucket, so texts that
// share words have a positive cosine similarity.
type MockEmbedder struct {
	dimension int
	calls     atomic.Int64
	texts     atomic.Int64

	mu     sync.Mutex
	failOn func(text string) error
}

// NewMockEmbedder creates a mock embedder producing vectors of dimension dim.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dimension: dim}
}

// FailOn installs a hook consulted for every text; a non-nil error fails the call.
func (m *MockEmbedder) FailOn(fn func(text string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = fn
}

// Calls returns the number of Embed and EmbedBatch invocations.
func (m *MockEmbedder) Calls() int64 {
	return m.calls.Load()
}

// Texts returns the number of texts embedded.
func (m *MockEmbedder) Texts() int64 {
	return m.texts.Load()
}

// Embed returns the vector for text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	return m.vector(ctx, text)
}

// EmbedBatch returns vectors for texts in order. Any failing text fails the batch.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.vector(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimension returns the configured dimension.
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}

func (m *MockEmbedder) vector(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	hook := m.failOn
	m.mu.Unlock()
	if hook != nil {
		if err := hook(text); err != nil {
			return nil, providerError("mock embedder", err)
		}
	}
	m.texts.Add(1)
	return HashVector(text, m.dimension), nil
}

// HashVector builds a unit-length bag-of-words vector. Empty or word-less text
// maps to a fixed unit vector so the result is never all zeros.
func HashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	if dim == 0 {
		return v
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		v[0] = 1
		return v
	}
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		v[int(sum%uint32(dim))] += sign
	}
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// String identifies the mock in logs.
func (m *MockEmbedder) String() string {
	return fmt.Sprintf("mock(dim=%d)", m.dimension)
}
