package store

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

// ErrNotFound is returned by lookups and keyed updates when no entity matches.
var ErrNotFound = errors.New("entity not found")

// ErrIndexExists is returned by index registration when an equivalent index
// already exists under another name. Callers treat it as success.
var ErrIndexExists = errors.New("index already exists")

// ErrStale is returned by SetEmbeddings when the node's observations no longer
// match the ones the vectors were computed from.
var ErrStale = errors.New("entity changed since it was read")

// Node property names holding the per-space vectors.
const (
	PropContentEmbedding     = "content_embedding"
	PropObservationEmbedding = "observation_embedding"
	PropIdentityEmbedding    = "identity_embedding"
	PropContextEmbedding     = "context_embedding"
	PropIndexedAt            = "indexed_at"
)

// GraphStore is the persistence boundary for the knowledge graph.
// Identifiers spliced into queries (labels, relation types, index and property
// names) are re-validated by implementations before use.
type GraphStore interface {
	// EnsureFulltextIndex registers a keyword index. Re-registration is a no-op.
	EnsureFulltextIndex(ctx context.Context, spec FulltextIndexSpec) error

	// EnsureVectorIndex registers a vector index. Re-registration is a no-op;
	// an equivalent index under another name yields ErrIndexExists.
	EnsureVectorIndex(ctx context.Context, spec VectorIndexSpec) error

	// GetEntity returns the entity with the given merge key or ErrNotFound.
	GetEntity(ctx context.Context, key models.MergeKey) (*models.Entity, error)

	// GetEntitiesByName returns every entity with the given name, across types.
	GetEntitiesByName(ctx context.Context, name string) ([]models.Entity, error)

	// MergeEntity upserts by merge key: labels are unioned, observations not
	// already present are appended, and the vectors are replaced. A legacy node
	// with the same key is adopted rather than duplicated.
	MergeEntity(ctx context.Context, w EntityWrite) (*MergeResult, error)

	// RemoveObservations drops the given observations and replaces the vectors.
	// Returns ErrNotFound when the key does not exist.
	RemoveObservations(ctx context.Context, r ObservationRemoval) (*models.Entity, error)

	// EnsureKeyConstraint makes (name, type) unique among base-labelled nodes.
	// Re-registration is a no-op.
	EnsureKeyConstraint(ctx context.Context) error

	// SetEmbeddings replaces the vectors of an existing node and attaches the
	// base label to legacy nodes. Returns ErrNotFound when the key does not
	// exist and ErrStale when the node's observations differ from w.Observations.
	SetEmbeddings(ctx context.Context, w EmbeddingWrite) error

	// DeleteEntities removes every node with one of the given names together
	// with its relations, and returns the number of nodes removed.
	DeleteEntities(ctx context.Context, names []string) (int64, error)

	// MergeRelation creates the typed edge if absent, adopting legacy endpoint
	// nodes. It reports false, without error, when either endpoint does not exist.
	MergeRelation(ctx context.Context, w RelationWrite) (bool, error)

	// DeleteRelations removes edges matching source, target and type exactly.
	DeleteRelations(ctx context.Context, relations []models.Relation) (int64, error)

	// Nearest returns up to k entities closest to vec in the named vector index,
	// scored in [0, 1] with higher meaning more similar.
	Nearest(ctx context.Context, index string, vec []float32, k int) ([]models.ScoredEntity, error)

	// Neighborhood returns distinct 1-hop neighbors and incident relations of an entity.
	Neighborhood(ctx context.Context, key models.MergeKey, maxNodes, maxRelations int) (*Neighborhood, error)

	// Fulltext runs a keyword query against the named fulltext index.
	Fulltext(ctx context.Context, index, query string, limit int) ([]models.ScoredEntity, error)

	// FindByNames returns entities with exactly matching names and their incident relations.
	FindByNames(ctx context.Context, names []string) (*models.KnowledgeGraph, error)

	// ReadAll returns every entity (including legacy nodes carrying a name and
	// type but no base label) and every relation between two such nodes.
	ReadAll(ctx context.Context) (*models.KnowledgeGraph, error)

	// CountUnindexed counts entities missing at least one of the three vectors.
	CountUnindexed(ctx context.Context) (int64, error)

	// ListUnindexed returns up to limit entities missing at least one vector.
	// A limit <= 0 returns all of them.
	ListUnindexed(ctx context.Context, limit int) ([]models.Entity, error)

	// Stats returns entity, relation and unindexed counts.
	Stats(ctx context.Context) (*models.GraphStats, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// VectorIndexSpec describes a vector index over one node property.
type VectorIndexSpec struct {
	Name       string
	Label      string
	Property   string
	Dimension  int
	Similarity string
}

// FulltextIndexSpec describes a keyword index over several node properties.
type FulltextIndexSpec struct {
	Name       string
	Label      string
	Properties []string
}

// EntityWrite is the parameter object for MergeEntity.
type EntityWrite struct {
	Key          models.MergeKey
	Labels       []string
	Observations []string
	Embeddings   models.EmbeddingSet
	IndexedAt    time.Time
}

// MergeResult is the stored entity after a merge plus the observations that
// were actually appended by it.
type MergeResult struct {
	Entity models.Entity
	Added  []string
}

// ObservationRemoval is the parameter object for RemoveObservations.
type ObservationRemoval struct {
	Key          models.MergeKey
	Observations []string
	Embeddings   models.EmbeddingSet
	IndexedAt    time.Time
}

// EmbeddingWrite is the parameter object for SetEmbeddings.
type EmbeddingWrite struct {
	Key        models.MergeKey
	Embeddings models.EmbeddingSet
	IndexedAt  time.Time
	// Observations the vectors were computed from, in stored order.
	Observations []string
}

// RelationWrite is the parameter object for MergeRelation.
type RelationWrite struct {
	Relation  models.Relation
	Context   []float32
	CreatedAt time.Time
}

// Neighborhood is the 1-hop expansion of an entity.
type Neighborhood struct {
	Related   []models.Entity
	Relations []models.Relation
}
