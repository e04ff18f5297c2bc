// Package resolver turns incoming entity and relation records into merge keys
// and reconciles them with what the graph store already holds.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajitpratap0/cortex-graph/internal/metrics"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

// Indexer computes embeddings for finalized entities and relations.
type Indexer interface {
	EmbedEntity(ctx context.Context, e models.Entity) (models.EmbeddingSet, error)
	EmbedRelation(ctx context.Context, r models.Relation) ([]float32, error)
}

// Resolver merges candidates into the graph. Work on one entity name is
// serialized in-process; the store's own append-if-absent diff covers writers
// in other processes.
type Resolver struct {
	store  store.GraphStore
	index  Indexer
	locks  *KeyLock
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Resolver.
func New(st store.GraphStore, index Indexer, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  st,
		index:  index,
		locks:  NewKeyLock(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// MergeOutcome describes the effect of merging one candidate.
type MergeOutcome struct {
	Entity  models.Entity
	Created bool
	Added   []string
}

// Resolve returns the merge key of a candidate: name and type, verbatim.
func Resolve(e models.Entity) models.MergeKey {
	return e.Key()
}

// Prepare normalizes a batch of candidates. The whole batch is rejected on the
// first validation error so nothing reaches the store.
func Prepare(candidates []models.Entity) ([]models.Entity, error) {
	out := make([]models.Entity, len(candidates))
	for i, c := range candidates {
		e, err := models.NewEntity(c.Name, c.Type, c.Observations, c.Labels)
		if err != nil {
			return nil, models.WithField(err, fmt.Sprintf("entities[%d]", i))
		}
		out[i] = e
	}
	return out, nil
}

// PrepareRelations sanitizes relation types for a batch of relations.
func PrepareRelations(relations []models.Relation) ([]models.Relation, error) {
	out := make([]models.Relation, len(relations))
	for i, r := range relations {
		rel, err := models.NewRelation(r.Source, r.Target, r.RelationType)
		if err != nil {
			return nil, models.WithField(err, fmt.Sprintf("relations[%d]", i))
		}
		out[i] = rel
	}
	return out, nil
}

// DiffObservations returns candidate observations absent from existing, in
// candidate order and without duplicates.
func DiffObservations(candidate, existing []string) []string {
	have := make(map[string]struct{}, len(existing)+len(candidate))
	for _, o := range existing {
		have[o] = struct{}{}
	}
	added := []string{}
	for _, o := range candidate {
		if _, ok := have[o]; ok {
			continue
		}
		have[o] = struct{}{}
		added = append(added, o)
	}
	return added
}

func unionLabels(existing, candidate []string) []string {
	out := append([]string{}, existing...)
	for _, l := range candidate {
		dup := false
		for _, e := range out {
			if e == l {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, l)
		}
	}
	return out
}

// Merge reconciles one prepared candidate with the stored entity under its key.
// Vectors are computed from the final entity before anything is written, so a
// provider failure leaves the store untouched.
func (r *Resolver) Merge(ctx context.Context, candidate models.Entity) (*MergeOutcome, error) {
	key := Resolve(candidate)
	unlock := r.locks.Lock(key.Name)
	defer unlock()

	created := false
	existing, err := r.store.GetEntity(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		created = true
		existing = &models.Entity{Name: key.Name, Type: key.Type}
	case err != nil:
		metrics.EntitiesMerged.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("resolver: loading %s: %w", key, err)
	}

	added := DiffObservations(candidate.Observations, existing.Observations)
	final := models.Entity{
		Name:         key.Name,
		Type:         key.Type,
		Observations: append(append([]string{}, existing.Observations...), added...),
		Labels:       unionLabels(existing.Labels, candidate.Labels),
	}

	set, err := r.index.EmbedEntity(ctx, final)
	if err != nil {
		metrics.EntitiesMerged.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("resolver: %w", err)
	}

	res, err := r.store.MergeEntity(ctx, store.EntityWrite{
		Key:          key,
		Labels:       candidate.Labels,
		Observations: added,
		Embeddings:   set,
		IndexedAt:    r.now(),
	})
	if err != nil {
		metrics.EntitiesMerged.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("resolver: %w", err)
	}

	outcome := "updated"
	if created {
		outcome = "created"
	}
	metrics.EntitiesMerged.WithLabelValues(outcome).Inc()
	metrics.ObservationsAdded.Add(float64(len(res.Added)))
	r.logger.Debug("merged entity", "key", key.String(), "created", created, "added", len(res.Added))

	return &MergeOutcome{Entity: res.Entity, Created: created, Added: res.Added}, nil
}

// AddObservations appends new observations to every entity named add.EntityName.
// An unknown name is a no-op.
func (r *Resolver) AddObservations(ctx context.Context, add models.ObservationAddition) ([]models.ObservationResult, error) {
	unlock := r.locks.Lock(add.EntityName)
	defer unlock()

	entities, err := r.store.GetEntitiesByName(ctx, add.EntityName)
	if err != nil {
		return nil, fmt.Errorf("resolver: loading %q: %w", add.EntityName, err)
	}
	contents := models.DedupeStrings(add.Contents)

	results := make([]models.ObservationResult, 0, len(entities))
	for _, e := range entities {
		added := DiffObservations(contents, e.Observations)
		if len(added) == 0 {
			results = append(results, models.ObservationResult{EntityName: e.Name, EntityType: e.Type, AddedObservations: []string{}})
			continue
		}
		final := e.Clone()
		final.Observations = append(final.Observations, added...)
		set, err := r.index.EmbedEntity(ctx, final)
		if err != nil {
			return results, fmt.Errorf("resolver: %w", err)
		}
		res, err := r.store.MergeEntity(ctx, store.EntityWrite{
			Key:          e.Key(),
			Observations: added,
			Embeddings:   set,
			IndexedAt:    r.now(),
		})
		if err != nil {
			return results, fmt.Errorf("resolver: %w", err)
		}
		metrics.ObservationsAdded.Add(float64(len(res.Added)))
		results = append(results, models.ObservationResult{EntityName: e.Name, EntityType: e.Type, AddedObservations: res.Added})
	}
	return results, nil
}

// DeleteObservations removes observations from every entity named
// del.EntityName and regenerates their vectors. It returns the number of
// entities that changed.
func (r *Resolver) DeleteObservations(ctx context.Context, del models.ObservationDeletion) (int, error) {
	unlock := r.locks.Lock(del.EntityName)
	defer unlock()

	entities, err := r.store.GetEntitiesByName(ctx, del.EntityName)
	if err != nil {
		return 0, fmt.Errorf("resolver: loading %q: %w", del.EntityName, err)
	}
	drop := make(map[string]struct{}, len(del.Observations))
	for _, o := range del.Observations {
		drop[o] = struct{}{}
	}

	changed := 0
	for _, e := range entities {
		final := e.Clone()
		final.Observations = final.Observations[:0]
		for _, o := range e.Observations {
			if _, gone := drop[o]; !gone {
				final.Observations = append(final.Observations, o)
			}
		}
		if len(final.Observations) == len(e.Observations) {
			continue
		}
		set, err := r.index.EmbedEntity(ctx, final)
		if err != nil {
			return changed, fmt.Errorf("resolver: %w", err)
		}
		_, err = r.store.RemoveObservations(ctx, store.ObservationRemoval{
			Key:          e.Key(),
			Observations: del.Observations,
			Embeddings:   set,
			IndexedAt:    r.now(),
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("resolver: %w", err)
		}
		changed++
	}
	return changed, nil
}

// MergeRelation embeds the relation context and creates the edge. It reports
// false when either endpoint does not exist.
func (r *Resolver) MergeRelation(ctx context.Context, rel models.Relation) (bool, error) {
	if !models.IsSafeIdentifier(rel.RelationType) {
		return false, &models.ValidationError{Field: "relationType", Reason: fmt.Sprintf("%q is not sanitized", rel.RelationType)}
	}
	vec, err := r.index.EmbedRelation(ctx, rel)
	if err != nil {
		return false, fmt.Errorf("resolver: %w", err)
	}
	ok, err := r.store.MergeRelation(ctx, store.RelationWrite{Relation: rel, Context: vec, CreatedAt: r.now()})
	if err != nil {
		return false, fmt.Errorf("resolver: %w", err)
	}
	if ok {
		metrics.RelationsMerged.Inc()
	} else {
		r.logger.Debug("relation endpoints missing", "source", rel.Source, "target", rel.Target, "type", rel.RelationType)
	}
	return ok, nil
}
