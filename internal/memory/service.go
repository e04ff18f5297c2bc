// Package memory is the knowledge-graph service used by every transport. It
// wires the resolver, index manager, search router and backfill coordinator
// around one graph store and one embedder.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/cortex-graph/internal/backfill"
	"github.com/ajitpratap0/cortex-graph/internal/embedder"
	"github.com/ajitpratap0/cortex-graph/internal/indexing"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/resolver"
	"github.com/ajitpratap0/cortex-graph/internal/search"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

// Options configures the service components.
type Options struct {
	Index  indexing.Options
	Search search.Options
}

// CreateResult is the outcome of CreateEntities. Entities holds the merged
// state of every entity that succeeded; Failed lists the others.
type CreateResult struct {
	Entities []models.Entity        `json:"entities"`
	Failed   []models.EntityFailure `json:"failed,omitempty"`
}

// RelationResult is the outcome of CreateRelations. Skipped relations had a
// missing endpoint.
type RelationResult struct {
	Relations []models.Relation `json:"relations"`
	Skipped   []models.Relation `json:"skipped,omitempty"`
}

// ImportResult is the outcome of Import.
type ImportResult struct {
	Entities  *CreateResult   `json:"entities"`
	Relations *RelationResult `json:"relations"`
}

// Health reports the state of the service collaborators.
type Health struct {
	Store     string `json:"store"`
	Embedder  string `json:"embedder"`
	Dimension int    `json:"dimension"`
}

// OK reports whether every collaborator is healthy.
func (h Health) OK() bool {
	return h.Store == "ok" && h.Embedder == "ok"
}

// Service is the knowledge-graph memory.
type Service struct {
	store    store.GraphStore
	index    *indexing.Manager
	resolver *resolver.Resolver
	router   *search.Router
	backfill *backfill.Coordinator
	logger   *slog.Logger
}

// New builds the service and registers the graph store indexes.
func New(ctx context.Context, st store.GraphStore, emb embedder.Embedder, opts Options, logger *slog.Logger) (*Service, error) {
	idx, err := indexing.NewManager(ctx, st, emb, opts.Index, logger)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	return &Service{
		store:    st,
		index:    idx,
		resolver: resolver.New(st, idx, logger),
		router:   search.NewRouter(st, idx, opts.Search, logger),
		backfill: backfill.New(st, idx, logger),
		logger:   logger,
	}, nil
}

// Start schedules the startup backfill in the background.
func (s *Service) Start(ctx context.Context) {
	s.backfill.Start(ctx)
}

// Close waits for background work and closes the store.
func (s *Service) Close() error {
	s.backfill.Wait()
	return s.store.Close()
}

// CreateEntities validates the whole batch up front, then merges each entity.
// A validation error rejects the batch before anything is written; a provider
// or store failure affects only its own entity. The first call also fires the
// deferred backfill when Start was never called.
func (s *Service) CreateEntities(ctx context.Context, candidates []models.Entity) (*CreateResult, error) {
	prepared, err := resolver.Prepare(candidates)
	if err != nil {
		return nil, err
	}
	s.backfill.TriggerOnce(ctx)

	outcomes := make([]*resolver.MergeOutcome, len(prepared))
	errs := make([]error, len(prepared))
	var g errgroup.Group
	g.SetLimit(s.index.Options().Workers)
	for i, e := range prepared {
		g.Go(func() error {
			outcomes[i], errs[i] = s.resolver.Merge(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	res := &CreateResult{Entities: []models.Entity{}}
	for i, e := range prepared {
		if errs[i] != nil {
			s.logger.Warn("creating entity failed", "name", e.Name, "type", e.Type, "error", errs[i])
			res.Failed = append(res.Failed, models.EntityFailure{Name: e.Name, Type: e.Type, Error: errs[i].Error()})
			continue
		}
		res.Entities = append(res.Entities, outcomes[i].Entity)
	}
	return res, nil
}

// CreateRelations sanitizes relation types and creates the edges. Relations
// whose endpoints do not exist are reported as skipped.
func (s *Service) CreateRelations(ctx context.Context, relations []models.Relation) (*RelationResult, error) {
	prepared, err := resolver.PrepareRelations(relations)
	if err != nil {
		return nil, err
	}
	res := &RelationResult{Relations: []models.Relation{}}
	for _, rel := range prepared {
		ok, err := s.resolver.MergeRelation(ctx, rel)
		if err != nil {
			return res, err
		}
		if ok {
			res.Relations = append(res.Relations, rel)
		} else {
			res.Skipped = append(res.Skipped, rel)
		}
	}
	return res, nil
}

// AddObservations appends observations to the named entities.
func (s *Service) AddObservations(ctx context.Context, additions []models.ObservationAddition) ([]models.ObservationResult, error) {
	out := []models.ObservationResult{}
	for _, add := range additions {
		res, err := s.resolver.AddObservations(ctx, add)
		out = append(out, res...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// DeleteEntities removes every node carrying one of names, across types, with
// its relations.
func (s *Service) DeleteEntities(ctx context.Context, names []string) (int64, error) {
	names = models.DedupeStrings(names)
	if len(names) == 0 {
		return 0, nil
	}
	n, err := s.store.DeleteEntities(ctx, names)
	if err != nil {
		return 0, fmt.Errorf("memory: deleting entities: %w", err)
	}
	if n > int64(len(names)) {
		s.logger.Warn("delete by name removed entities of several types", "names", names, "deleted", n)
	}
	return n, nil
}

// DeleteObservations removes observations and regenerates the affected vectors.
// It returns the number of entities that changed.
func (s *Service) DeleteObservations(ctx context.Context, deletions []models.ObservationDeletion) (int, error) {
	total := 0
	for _, del := range deletions {
		n, err := s.resolver.DeleteObservations(ctx, del)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// DeleteRelations removes the given edges. Relation types are sanitized the
// same way as on creation so a round trip matches.
func (s *Service) DeleteRelations(ctx context.Context, relations []models.Relation) (int64, error) {
	prepared, err := resolver.PrepareRelations(relations)
	if err != nil {
		return 0, err
	}
	if len(prepared) == 0 {
		return 0, nil
	}
	n, err := s.store.DeleteRelations(ctx, prepared)
	if err != nil {
		return 0, fmt.Errorf("memory: deleting relations: %w", err)
	}
	return n, nil
}

// ReadGraph returns the whole graph.
func (s *Service) ReadGraph(ctx context.Context) (*models.KnowledgeGraph, error) {
	return s.router.ReadAll(ctx)
}

// SearchNodes runs the routed search with fulltext fallback. It never fails.
func (s *Service) SearchNodes(ctx context.Context, query string, limit int) *models.SearchResult {
	return s.router.Search(ctx, query, limit)
}

// FindNodes returns entities with exactly matching names.
func (s *Service) FindNodes(ctx context.Context, names []string) (*models.KnowledgeGraph, error) {
	return s.router.FindByName(ctx, names)
}

// VectorSearch runs a similarity search in one embedding space.
func (s *Service) VectorSearch(ctx context.Context, q search.VectorQuery) (*models.SearchResult, error) {
	return s.router.VectorSearch(ctx, q)
}

// Stats returns graph counts.
func (s *Service) Stats(ctx context.Context) (*models.GraphStats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: collecting stats: %w", err)
	}
	return st, nil
}

// EnsureAllIndexed runs a foreground backfill.
func (s *Service) EnsureAllIndexed(ctx context.Context) (*backfill.Report, error) {
	return s.backfill.EnsureAllIndexed(ctx)
}

// LastBackfill returns the report of the most recent backfill run, or nil.
func (s *Service) LastBackfill() *backfill.Report {
	return s.backfill.LastReport()
}

// Import replays a graph through the normal create paths, so merge semantics
// apply to every entity and relation.
func (s *Service) Import(ctx context.Context, g *models.KnowledgeGraph) (*ImportResult, error) {
	if g == nil {
		return nil, errors.New("memory: import: nil graph")
	}
	ents, err := s.CreateEntities(ctx, g.Entities)
	if err != nil {
		return nil, fmt.Errorf("memory: import: %w", err)
	}
	rels, err := s.CreateRelations(ctx, g.Relations)
	if err != nil {
		return &ImportResult{Entities: ents, Relations: rels}, fmt.Errorf("memory: import: %w", err)
	}
	return &ImportResult{Entities: ents, Relations: rels}, nil
}

// Health checks store connectivity and an embedder round trip.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Store: "ok", Embedder: "ok", Dimension: s.index.Options().Dimension}
	if err := s.store.Ping(ctx); err != nil {
		h.Store = err.Error()
	}
	if _, err := s.index.EmbedQuery(ctx, "health check"); err != nil {
		h.Embedder = err.Error()
	}
	return h
}
