package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

// MockStore is an in-memory implementation of GraphStore for testing.
// Similarity scores are normalized to [0, 1] as (1 + cosine) / 2, matching
// the graph engine's vector index.
type MockStore struct {
	mu        sync.RWMutex
	keyUnique bool
	nodes     map[models.MergeKey]*storedNode
	edges     map[models.Relation]*storedEdge
	vectors   map[string]VectorIndexSpec
	fulltexts map[string]FulltextIndexSpec
}

type storedNode struct {
	entity    models.Entity
	base      bool
	vectors   map[string][]float32
	indexedAt time.Time
}

type storedEdge struct {
	context   []float32
	createdAt time.Time
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		nodes:     make(map[models.MergeKey]*storedNode),
		edges:     make(map[models.Relation]*storedEdge),
		vectors:   make(map[string]VectorIndexSpec),
		fulltexts: make(map[string]FulltextIndexSpec),
	}
}

// AddLegacyNode inserts a node that carries a name and type but neither the
// base label nor any vector, as left behind by older writers.
func (m *MockStore) AddLegacyNode(e models.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[e.Key()] = &storedNode{entity: e.Clone(), vectors: map[string][]float32{}}
}

// Embeddings returns a copy of the vectors stored on an entity.
func (m *MockStore) Embeddings(key models.MergeKey) (models.EmbeddingSet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[key]
	if !ok {
		return models.EmbeddingSet{}, false
	}
	return models.EmbeddingSet{
		Content:     copyVec(n.vectors[PropContentEmbedding]),
		Observation: copyVec(n.vectors[PropObservationEmbedding]),
		Identity:    copyVec(n.vectors[PropIdentityEmbedding]),
	}, true
}

// HasBaseLabel reports whether the node under key carries the base label.
func (m *MockStore) HasBaseLabel(key models.MergeKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[key]
	return ok && n.base
}

// RelationContext returns the context vector stored on a relation.
func (m *MockStore) RelationContext(r models.Relation) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[r]
	if !ok {
		return nil, false
	}
	return copyVec(e.context), true
}

// VectorIndexes returns the names of registered vector indexes.
func (m *MockStore) VectorIndexes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vectors))
	for name := range m.vectors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EnsureFulltextIndex records the index definition.
func (m *MockStore) EnsureFulltextIndex(_ context.Context, spec FulltextIndexSpec) error {
	if err := checkIdentifiers(append([]string{spec.Name, spec.Label}, spec.Properties...)...); err != nil {
		return fmt.Errorf("fulltext index %q: %w", spec.Name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fulltexts[spec.Name] = spec
	return nil
}

// EnsureVectorIndex records the index definition. An index over the same
// label and property under a different name yields ErrIndexExists.
func (m *MockStore) EnsureVectorIndex(_ context.Context, spec VectorIndexSpec) error {
	if err := checkIdentifiers(spec.Name, spec.Label, spec.Property); err != nil {
		return fmt.Errorf("vector index %q: %w", spec.Name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vectors[spec.Name]; ok {
		return nil
	}
	for _, existing := range m.vectors {
		if existing.Label == spec.Label && existing.Property == spec.Property {
			return ErrIndexExists
		}
	}
	m.vectors[spec.Name] = spec
	return nil
}

// GetEntity returns the entity under key.
func (m *MockStore) GetEntity(_ context.Context, key models.MergeKey) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[key]
	if !ok {
		return nil, ErrNotFound
	}
	e := n.entity.Clone()
	return &e, nil
}

// GetEntitiesByName returns every entity with the given name.
func (m *MockStore) GetEntitiesByName(_ context.Context, name string) ([]models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Entity{}
	for k, n := range m.nodes {
		if k.Name == name {
			out = append(out, n.entity.Clone())
		}
	}
	sortEntities(out)
	return out, nil
}

// MergeEntity upserts by merge key. A legacy node under the key is adopted.
func (m *MockStore) MergeEntity(_ context.Context, w EntityWrite) (*MergeResult, error) {
	if len(w.Labels) > 0 {
		if err := checkIdentifiers(w.Labels...); err != nil {
			return nil, fmt.Errorf("merging entity %s: %w", w.Key, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[w.Key]
	if !ok {
		n = &storedNode{
			entity:  models.Entity{Name: w.Key.Name, Type: w.Key.Type, Observations: []string{}, Labels: []string{}},
			vectors: map[string][]float32{},
		}
		m.nodes[w.Key] = n
	}
	n.base = true

	existing := make(map[string]struct{}, len(n.entity.Observations))
	for _, o := range n.entity.Observations {
		existing[o] = struct{}{}
	}
	added := []string{}
	for _, o := range w.Observations {
		if _, dup := existing[o]; dup {
			continue
		}
		existing[o] = struct{}{}
		added = append(added, o)
	}
	n.entity.Observations = append(n.entity.Observations, added...)
	n.entity.Labels = unionStrings(n.entity.Labels, w.Labels)
	setVectors(n, w.Embeddings, w.IndexedAt)

	return &MergeResult{Entity: n.entity.Clone(), Added: added}, nil
}

// RemoveObservations drops observations and replaces vectors.
func (m *MockStore) RemoveObservations(_ context.Context, r ObservationRemoval) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[r.Key]
	if !ok {
		return nil, ErrNotFound
	}
	drop := make(map[string]struct{}, len(r.Observations))
	for _, o := range r.Observations {
		drop[o] = struct{}{}
	}
	kept := make([]string, 0, len(n.entity.Observations))
	for _, o := range n.entity.Observations {
		if _, gone := drop[o]; !gone {
			kept = append(kept, o)
		}
	}
	n.entity.Observations = kept
	n.base = true
	setVectors(n, r.Embeddings, r.IndexedAt)
	e := n.entity.Clone()
	return &e, nil
}

// EnsureKeyConstraint records that merge keys are declared unique. The map
// keyed by MergeKey already guarantees it.
func (m *MockStore) EnsureKeyConstraint(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyUnique = true
	return nil
}

// HasKeyConstraint reports whether EnsureKeyConstraint was called.
func (m *MockStore) HasKeyConstraint() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keyUnique
}

// SetEmbeddings replaces the vectors of an existing node whose observations
// still equal the ones the vectors were computed from.
func (m *MockStore) SetEmbeddings(_ context.Context, w EmbeddingWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[w.Key]
	if !ok {
		return ErrNotFound
	}
	if !sameStrings(n.entity.Observations, w.Observations) {
		return ErrStale
	}
	n.base = true
	setVectors(n, w.Embeddings, w.IndexedAt)
	return nil
}

// DeleteEntities removes nodes by name and every relation touching a name
// that no longer has a node.
func (m *MockStore) DeleteEntities(_ context.Context, names []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := make(map[string]struct{}, len(names))
	for _, n := range names {
		targets[n] = struct{}{}
	}
	var deleted int64
	for k := range m.nodes {
		if _, ok := targets[k.Name]; ok {
			delete(m.nodes, k)
			deleted++
		}
	}
	for r := range m.edges {
		if !m.hasNameLocked(r.Source) || !m.hasNameLocked(r.Target) {
			delete(m.edges, r)
		}
	}
	return deleted, nil
}

// MergeRelation creates the edge when both endpoint names exist, adopting
// legacy endpoint nodes.
func (m *MockStore) MergeRelation(_ context.Context, w RelationWrite) (bool, error) {
	if !models.IsSafeIdentifier(w.Relation.RelationType) {
		return false, fmt.Errorf("merging relation: unsafe relation type %q", w.Relation.RelationType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasNameLocked(w.Relation.Source) || !m.hasNameLocked(w.Relation.Target) {
		return false, nil
	}
	m.adoptLocked(w.Relation.Source)
	m.adoptLocked(w.Relation.Target)
	e, ok := m.edges[w.Relation]
	if !ok {
		e = &storedEdge{createdAt: w.CreatedAt}
		m.edges[w.Relation] = e
	}
	e.context = copyVec(w.Context)
	return true, nil
}

// DeleteRelations removes exact matches.
func (m *MockStore) DeleteRelations(_ context.Context, relations []models.Relation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for _, r := range relations {
		if _, ok := m.edges[r]; ok {
			delete(m.edges, r)
			deleted++
		}
	}
	return deleted, nil
}

// Nearest scans every base-labelled node holding a vector of the index dimension.
func (m *MockStore) Nearest(_ context.Context, index string, vec []float32, k int) ([]models.ScoredEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.vectors[index]
	if !ok {
		return nil, fmt.Errorf("querying vector index %s: no such index", index)
	}
	if len(vec) != spec.Dimension {
		return nil, fmt.Errorf("querying vector index %s: query dimension %d, index dimension %d", index, len(vec), spec.Dimension)
	}
	results := []models.ScoredEntity{}
	if k <= 0 {
		return results, nil
	}
	for _, n := range m.nodes {
		v := n.vectors[spec.Property]
		if !n.base || len(v) != spec.Dimension {
			continue
		}
		score := (1 + cosineSimilarity(vec, v)) / 2
		results = append(results, models.ScoredEntity{Entity: n.entity.Clone(), Score: score})
	}
	sortScored(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Neighborhood returns distinct neighbors and incident relations.
func (m *MockStore) Neighborhood(_ context.Context, key models.MergeKey, maxNodes, maxRelations int) (*Neighborhood, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nb := &Neighborhood{Related: []models.Entity{}, Relations: []models.Relation{}}
	if _, ok := m.nodes[key]; !ok {
		return nb, nil
	}
	var incident []models.Relation
	for r := range m.edges {
		if r.Source == key.Name || r.Target == key.Name {
			incident = append(incident, r)
		}
	}
	sortRelations(incident)

	seen := map[models.MergeKey]struct{}{key: {}}
	for _, r := range incident {
		if len(nb.Relations) < maxRelations {
			nb.Relations = append(nb.Relations, r)
		}
		other := r.Target
		if r.Target == key.Name {
			other = r.Source
		}
		for _, e := range m.byNameLocked(other) {
			if len(nb.Related) >= maxNodes {
				break
			}
			if _, dup := seen[e.Key()]; dup {
				continue
			}
			seen[e.Key()] = struct{}{}
			nb.Related = append(nb.Related, e)
		}
	}
	return nb, nil
}

// Fulltext scores base-labelled nodes by the fraction of query terms found in
// the indexed properties, case-insensitively.
func (m *MockStore) Fulltext(_ context.Context, index, query string, limit int) ([]models.ScoredEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.fulltexts[index]
	if !ok {
		return nil, fmt.Errorf("querying fulltext index %s: no such index", index)
	}
	terms := tokenize(query)
	results := []models.ScoredEntity{}
	if len(terms) == 0 || limit <= 0 {
		return results, nil
	}
	for _, n := range m.nodes {
		if !n.base {
			continue
		}
		words := map[string]struct{}{}
		for _, p := range spec.Properties {
			for _, text := range propertyText(n.entity, p) {
				for _, w := range tokenize(text) {
					words[w] = struct{}{}
				}
			}
		}
		var hits int
		for _, t := range terms {
			if _, ok := words[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		results = append(results, models.ScoredEntity{
			Entity: n.entity.Clone(),
			Score:  float64(hits) / float64(len(terms)),
		})
	}
	sortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindByNames returns entities by exact name and their incident relations.
func (m *MockStore) FindByNames(_ context.Context, names []string) (*models.KnowledgeGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	for k, n := range m.nodes {
		if _, ok := wanted[k.Name]; ok {
			g.Entities = append(g.Entities, n.entity.Clone())
		}
	}
	for r := range m.edges {
		_, src := wanted[r.Source]
		_, tgt := wanted[r.Target]
		if (src || tgt) && m.hasNameLocked(r.Source) && m.hasNameLocked(r.Target) {
			g.Relations = append(g.Relations, r)
		}
	}
	sortEntities(g.Entities)
	sortRelations(g.Relations)
	return g, nil
}

// ReadAll returns every node and every relation between existing nodes.
func (m *MockStore) ReadAll(_ context.Context) (*models.KnowledgeGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	for _, n := range m.nodes {
		g.Entities = append(g.Entities, n.entity.Clone())
	}
	for r := range m.edges {
		if m.hasNameLocked(r.Source) && m.hasNameLocked(r.Target) {
			g.Relations = append(g.Relations, r)
		}
	}
	sortEntities(g.Entities)
	sortRelations(g.Relations)
	return g, nil
}

// CountUnindexed counts nodes missing any of the three vectors.
func (m *MockStore) CountUnindexed(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, n := range m.nodes {
		if !indexed(n) {
			count++
		}
	}
	return count, nil
}

// ListUnindexed lists nodes missing any of the three vectors, ordered by key.
func (m *MockStore) ListUnindexed(_ context.Context, limit int) ([]models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Entity{}
	for _, n := range m.nodes {
		if !indexed(n) {
			out = append(out, n.entity.Clone())
		}
	}
	sortEntities(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats returns counts computed from the in-memory graph.
func (m *MockStore) Stats(ctx context.Context) (*models.GraphStats, error) {
	unindexed, _ := m.CountUnindexed(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rels int64
	for r := range m.edges {
		if m.hasNameLocked(r.Source) && m.hasNameLocked(r.Target) {
			rels++
		}
	}
	return &models.GraphStats{
		Entities:  int64(len(m.nodes)),
		Relations: rels,
		Unindexed: unindexed,
		Collected: time.Now().UTC(),
	}, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// --- helpers ---

func (m *MockStore) hasNameLocked(name string) bool {
	for k := range m.nodes {
		if k.Name == name {
			return true
		}
	}
	return false
}

func (m *MockStore) adoptLocked(name string) {
	for k, n := range m.nodes {
		if k.Name == name {
			n.base = true
		}
	}
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *MockStore) byNameLocked(name string) []models.Entity {
	var out []models.Entity
	for k, n := range m.nodes {
		if k.Name == name {
			out = append(out, n.entity.Clone())
		}
	}
	sortEntities(out)
	return out
}

func setVectors(n *storedNode, set models.EmbeddingSet, at time.Time) {
	n.vectors[PropContentEmbedding] = copyVec(set.Content)
	n.vectors[PropObservationEmbedding] = copyVec(set.Observation)
	n.vectors[PropIdentityEmbedding] = copyVec(set.Identity)
	n.indexedAt = at
}

func indexed(n *storedNode) bool {
	return len(n.vectors[PropContentEmbedding]) > 0 &&
		len(n.vectors[PropObservationEmbedding]) > 0 &&
		len(n.vectors[PropIdentityEmbedding]) > 0
}

func propertyText(e models.Entity, prop string) []string {
	switch prop {
	case "name":
		return []string{e.Name}
	case "type":
		return []string{e.Type}
	case "observations":
		return e.Observations
	}
	return nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func unionStrings(a, b []string) []string {
	out := append(make([]string, 0, len(a)+len(b)), a...)
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func copyVec(v []float32) []float32 {
	if v == nil {
		return nil
	}
	return append(make([]float32, 0, len(v)), v...)
}

func sortEntities(es []models.Entity) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Name != es[j].Name {
			return es[i].Name < es[j].Name
		}
		return es[i].Type < es[j].Type
	})
}

func sortRelations(rs []models.Relation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Source != rs[j].Source {
			return rs[i].Source < rs[j].Source
		}
		if rs[i].Target != rs[j].Target {
			return rs[i].Target < rs[j].Target
		}
		return rs[i].RelationType < rs[j].RelationType
	})
}

func sortScored(rs []models.ScoredEntity) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		if rs[i].Name != rs[j].Name {
			return rs[i].Name < rs[j].Name
		}
		return rs[i].Type < rs[j].Type
	})
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
