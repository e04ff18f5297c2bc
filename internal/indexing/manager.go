// Package indexing maintains the three per-entity embedding spaces and the
// graph store indexes that serve them.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajitpratap0/cortex-graph/internal/embedder"
	"github.com/ajitpratap0/cortex-graph/internal/metrics"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

// Default index configuration.
const (
	DefaultDimension        = 1024
	DefaultSimilarity       = "cosine"
	DefaultBatchSize        = 16
	DefaultWorkers          = 4
	DefaultFulltextIndex    = "search"
	DefaultContentIndex     = "memory_content_embeddings"
	DefaultObservationIndex = "memory_observation_embeddings"
	DefaultIdentityIndex    = "memory_identity_embeddings"
)

// FulltextProperties are the node properties covered by the fulltext index.
var FulltextProperties = []string{"name", "type", "observations"}

// Options configures a Manager. Zero values take the defaults above.
type Options struct {
	Dimension        int
	Similarity       string
	BatchSize        int
	Workers          int
	FulltextIndex    string
	ContentIndex     string
	ObservationIndex string
	IdentityIndex    string
}

func (o Options) withDefaults() Options {
	if o.Dimension <= 0 {
		o.Dimension = DefaultDimension
	}
	if o.Similarity == "" {
		o.Similarity = DefaultSimilarity
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.FulltextIndex == "" {
		o.FulltextIndex = DefaultFulltextIndex
	}
	if o.ContentIndex == "" {
		o.ContentIndex = DefaultContentIndex
	}
	if o.ObservationIndex == "" {
		o.ObservationIndex = DefaultObservationIndex
	}
	if o.IdentityIndex == "" {
		o.IdentityIndex = DefaultIdentityIndex
	}
	return o
}

// Manager derives text projections, calls the embedder, and keeps the
// vector indexes registered and populated.
type Manager struct {
	store    store.GraphStore
	embedder embedder.Embedder
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// NewManager builds a Manager and registers all indexes. Any store error other
// than an already-existing index makes construction fail.
func NewManager(ctx context.Context, st store.GraphStore, emb embedder.Embedder, opts Options, logger *slog.Logger) (*Manager, error) {
	opts = opts.withDefaults()
	if d := emb.Dimension(); d > 0 && d != opts.Dimension {
		return nil, fmt.Errorf("indexing: embedder dimension %d does not match index dimension %d", d, opts.Dimension)
	}
	m := &Manager{
		store:    st,
		embedder: emb,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Options returns the effective options.
func (m *Manager) Options() Options {
	return m.opts
}

// EnsureIndexes registers the merge key constraint, the fulltext index and
// the three vector indexes. It is idempotent.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	if err := m.store.EnsureKeyConstraint(ctx); err != nil {
		return fmt.Errorf("indexing: ensuring key constraint: %w", err)
	}
	err := m.store.EnsureFulltextIndex(ctx, store.FulltextIndexSpec{
		Name:       m.opts.FulltextIndex,
		Label:      models.BaseLabel,
		Properties: FulltextProperties,
	})
	if err != nil && !errors.Is(err, store.ErrIndexExists) {
		return fmt.Errorf("indexing: ensuring fulltext index: %w", err)
	}

	vectors := []struct{ name, property string }{
		{m.opts.ContentIndex, store.PropContentEmbedding},
		{m.opts.ObservationIndex, store.PropObservationEmbedding},
		{m.opts.IdentityIndex, store.PropIdentityEmbedding},
	}
	for _, v := range vectors {
		err := m.store.EnsureVectorIndex(ctx, store.VectorIndexSpec{
			Name:       v.name,
			Label:      models.BaseLabel,
			Property:   v.property,
			Dimension:  m.opts.Dimension,
			Similarity: m.opts.Similarity,
		})
		if errors.Is(err, store.ErrIndexExists) {
			m.logger.Debug("vector index already exists", "index", v.name)
			continue
		}
		if err != nil {
			return fmt.Errorf("indexing: ensuring vector index %s: %w", v.name, err)
		}
	}
	m.logger.Info("indexes ready",
		"fulltext", m.opts.FulltextIndex,
		"content", m.opts.ContentIndex,
		"observation", m.opts.ObservationIndex,
		"identity", m.opts.IdentityIndex,
		"dimension", m.opts.Dimension)
	return nil
}

// IndexName returns the vector index serving a search mode.
func (m *Manager) IndexName(mode models.SearchMode) string {
	switch mode {
	case models.SearchModeObservations:
		return m.opts.ObservationIndex
	case models.SearchModeIdentity:
		return m.opts.IdentityIndex
	default:
		return m.opts.ContentIndex
	}
}

// FulltextIndex returns the fulltext index name.
func (m *Manager) FulltextIndex() string {
	return m.opts.FulltextIndex
}

// EmbedEntity computes all three vectors of e in one provider call.
func (m *Manager) EmbedEntity(ctx context.Context, e models.Entity) (models.EmbeddingSet, error) {
	texts := []string{ContentText(e), ObservationText(e), IdentityText(e)}
	vecs, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("entity", "error").Inc()
		return models.EmbeddingSet{}, fmt.Errorf("embedding entity %s: %w", e.Key(), err)
	}
	if err := m.checkVectors(vecs, len(texts)); err != nil {
		metrics.EmbeddingRequests.WithLabelValues("entity", "error").Inc()
		return models.EmbeddingSet{}, fmt.Errorf("embedding entity %s: %w", e.Key(), err)
	}
	metrics.EmbeddingRequests.WithLabelValues("entity", "ok").Inc()
	return models.EmbeddingSet{Content: vecs[0], Observation: vecs[1], Identity: vecs[2]}, nil
}

// EmbedRelation computes the context vector of r.
func (m *Manager) EmbedRelation(ctx context.Context, r models.Relation) ([]float32, error) {
	v, err := m.embedOne(ctx, "relation", ContextText(r))
	if err != nil {
		return nil, fmt.Errorf("embedding relation %s-%s->%s: %w", r.Source, r.RelationType, r.Target, err)
	}
	return v, nil
}

// EmbedQuery computes the vector of a search query.
func (m *Manager) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	v, err := m.embedOne(ctx, "query", query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return v, nil
}

// maxStaleRetries bounds how often IndexEntity re-reads an entity that
// changed between embedding and writing.
const maxStaleRetries = 3

// IndexEntity embeds e and writes its vectors to the store. The write only
// lands if the stored observations still match e; otherwise the entity is
// re-read and embedded again.
func (m *Manager) IndexEntity(ctx context.Context, e models.Entity) error {
	for attempt := 1; ; attempt++ {
		set, err := m.EmbedEntity(ctx, e)
		if err != nil {
			return err
		}
		err = m.store.SetEmbeddings(ctx, store.EmbeddingWrite{
			Key:          e.Key(),
			Embeddings:   set,
			IndexedAt:    m.now(),
			Observations: e.Observations,
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrStale) || attempt >= maxStaleRetries {
			return fmt.Errorf("storing embeddings for %s: %w", e.Key(), err)
		}
		m.logger.Debug("entity changed while indexing, re-reading", "entity", e.Key().String(), "attempt", attempt)
		fresh, err := m.store.GetEntity(ctx, e.Key())
		if err != nil {
			return fmt.Errorf("re-reading %s: %w", e.Key(), err)
		}
		e = *fresh
	}
}

func (m *Manager) embedOne(ctx context.Context, kind, text string) ([]float32, error) {
	v, err := m.embedder.Embed(ctx, text)
	if err == nil {
		err = m.checkVectors([][]float32{v}, 1)
	}
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	metrics.EmbeddingRequests.WithLabelValues(kind, "ok").Inc()
	return v, nil
}

func (m *Manager) checkVectors(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: expected %d vectors, got %d", embedder.ErrProvider, want, len(vecs))
	}
	for i, v := range vecs {
		if len(v) != m.opts.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, index dimension is %d",
				embedder.ErrProvider, i, len(v), m.opts.Dimension)
		}
	}
	return nil
}
