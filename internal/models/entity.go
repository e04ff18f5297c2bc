package models

import "time"

// BaseLabel is attached to every entity node in addition to caller-supplied labels.
// Vector and fulltext indexes are scoped to it.
const BaseLabel = "Entity"

// MaxLabels is the maximum number of sanitized caller labels accepted per entity.
const MaxLabels = 3

// MergeKey identifies a stored entity. Name and type are used verbatim:
// case and whitespace are significant.
type MergeKey struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// String renders the key as "name (type)".
func (k MergeKey) String() string {
	return k.Name + " (" + k.Type + ")"
}

// Entity is a node in the knowledge graph.
type Entity struct {
	Name         string   `json:"name" yaml:"name"`
	Type         string   `json:"type" yaml:"type"`
	Observations []string `json:"observations" yaml:"observations"`
	Labels       []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Key returns the entity's merge key.
func (e Entity) Key() MergeKey {
	return MergeKey{Name: e.Name, Type: e.Type}
}

// Clone returns a deep copy so callers never share slices with stored state.
func (e Entity) Clone() Entity {
	out := Entity{Name: e.Name, Type: e.Type}
	if e.Observations != nil {
		out.Observations = append(make([]string, 0, len(e.Observations)), e.Observations...)
	}
	if e.Labels != nil {
		out.Labels = append(make([]string, 0, len(e.Labels)), e.Labels...)
	}
	return out
}

// NewEntity builds a normalized Entity: observations are de-duplicated in
// first-seen order and labels are sanitized. It returns a *ValidationError when
// more than MaxLabels labels survive sanitization. Empty name or type are not
// rejected here.
func NewEntity(name, entityType string, observations, labels []string) (Entity, error) {
	sanitized, err := SanitizeLabels(labels)
	if err != nil {
		return Entity{}, err
	}
	return Entity{
		Name:         name,
		Type:         entityType,
		Observations: DedupeStrings(observations),
		Labels:       sanitized,
	}, nil
}

// Relation is a directed, typed edge between two entities referenced by name.
type Relation struct {
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	RelationType string `json:"relationType" yaml:"relationType"`
}

// NewRelation returns a relation whose type has been sanitized into a safe identifier.
func NewRelation(source, target, relationType string) (Relation, error) {
	rt, err := SanitizeRelationType(relationType)
	if err != nil {
		return Relation{}, err
	}
	return Relation{Source: source, Target: target, RelationType: rt}, nil
}

// KnowledgeGraph is a set of entities and the relations between them.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities" yaml:"entities"`
	Relations []Relation `json:"relations" yaml:"relations"`
}

// ObservationAddition requests new observations on every entity named EntityName.
type ObservationAddition struct {
	EntityName string   `json:"entityName"`
	Contents   []string `json:"contents"`
}

// ObservationDeletion requests removal of observations from every entity named EntityName.
type ObservationDeletion struct {
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}

// ObservationResult reports which observations were actually appended to an entity.
type ObservationResult struct {
	EntityName        string   `json:"entityName"`
	EntityType        string   `json:"entityType"`
	AddedObservations []string `json:"addedObservations"`
}

// EntityFailure records a per-entity failure inside a batch operation.
type EntityFailure struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

// EmbeddingSet holds the three vectors maintained per entity.
type EmbeddingSet struct {
	Content     []float32 `json:"content"`
	Observation []float32 `json:"observation"`
	Identity    []float32 `json:"identity"`
}

// Complete reports whether all three spaces are populated.
func (s EmbeddingSet) Complete() bool {
	return len(s.Content) > 0 && len(s.Observation) > 0 && len(s.Identity) > 0
}

// ScoredEntity is an entity returned from a similarity or fulltext query.
type ScoredEntity struct {
	Entity
	Score float64 `json:"score"`
}

// SearchResult is the well-formed (possibly empty) response of every search path.
type SearchResult struct {
	Entities  []ScoredEntity `json:"entities"`
	Relations []Relation     `json:"relations"`
	Related   []Entity       `json:"related,omitempty"`
	Strategy  string         `json:"strategy"`
}

// EmptySearchResult returns a result with non-nil, empty slices.
func EmptySearchResult(strategy string) *SearchResult {
	return &SearchResult{
		Entities:  []ScoredEntity{},
		Relations: []Relation{},
		Strategy:  strategy,
	}
}

// GraphStats holds summary counts about the stored graph.
type GraphStats struct {
	Entities  int64     `json:"entities"`
	Relations int64     `json:"relations"`
	Unindexed int64     `json:"unindexed"`
	Collected time.Time `json:"collected_at"`
}
