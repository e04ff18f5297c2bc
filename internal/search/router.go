// Package search routes free-text queries to exact lookup, one of the three
// embedding spaces, or fulltext, and expands hits with their graph neighbors.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/cortex-graph/internal/metrics"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/store"
)

// Defaults applied when a caller leaves a parameter unset.
const (
	DefaultLimit        = 10
	DefaultThreshold    = 0.7
	DefaultMaxRelated   = 5
	DefaultMaxRelations = 10
)

// QueryIndex is the slice of the index manager the router needs.
type QueryIndex interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	IndexName(mode models.SearchMode) string
	FulltextIndex() string
}

// Options configures a Router. Zero values take the defaults above, except
// Threshold where only nil does, so an explicit 0 disables filtering.
type Options struct {
	Limit        int
	Threshold    *float64
	MaxRelated   int
	MaxRelations int
}

// VectorQuery is the parameter object for VectorSearch. A nil Threshold means
// the router default; any explicit value, including negative ones, is used as is.
type VectorQuery struct {
	Query     string
	Mode      string
	Limit     int
	Threshold *float64
}

// Router dispatches queries.
type Router struct {
	store  store.GraphStore
	index  QueryIndex
	opts   Options
	logger *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(st store.GraphStore, index QueryIndex, opts Options, logger *slog.Logger) *Router {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Threshold == nil {
		t := DefaultThreshold
		opts.Threshold = &t
	}
	if opts.MaxRelated <= 0 {
		opts.MaxRelated = DefaultMaxRelated
	}
	if opts.MaxRelations <= 0 {
		opts.MaxRelations = DefaultMaxRelations
	}
	return &Router{store: st, index: index, opts: opts, logger: logger}
}

// Search runs SmartSearch and falls back to fulltext when it fails or finds
// nothing. The fallback replaces the semantic result rather than merging with
// it. Search never fails: the worst case is an empty result.
func (r *Router) Search(ctx context.Context, query string, limit int) *models.SearchResult {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return models.EmptySearchResult(StrategyEmpty)
	}

	res, err := r.SmartSearch(ctx, query, limit)
	if err == nil && len(res.Entities) > 0 {
		r.observe(res.Strategy, start)
		return res
	}
	if err != nil {
		r.logger.Warn("semantic search failed, falling back to fulltext", "query", query, "error", err)
	}
	metrics.SearchFallbacks.Inc()

	res, err = r.Fulltext(ctx, query, limit)
	if err != nil {
		r.logger.Warn("fulltext search failed", "query", query, "error", err)
		return models.EmptySearchResult(StrategyFulltext)
	}
	r.observe(res.Strategy, start)
	return res
}

// SmartSearch tries an exact name lookup for short non-question queries, then
// a vector search in the space chosen by Classify.
func (r *Router) SmartSearch(ctx context.Context, query string, limit int) (*models.SearchResult, error) {
	route := Classify(query)
	if route.Exact {
		res, err := r.exact(ctx, route.Names)
		if err != nil {
			r.logger.Debug("exact lookup failed", "names", route.Names, "error", err)
		} else if len(res.Entities) > 0 {
			return res, nil
		}
	}
	return r.VectorSearch(ctx, VectorQuery{Query: query, Mode: string(route.Mode), Limit: limit})
}

// VectorSearch embeds the query, asks the store for twice the limit, drops hits
// below the threshold, orders by score, caps at the limit, and expands each
// surviving hit with its 1-hop neighborhood.
func (r *Router) VectorSearch(ctx context.Context, q VectorQuery) (*models.SearchResult, error) {
	mode, err := models.ParseSearchMode(q.Mode)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = r.opts.Limit
	}
	threshold := *r.opts.Threshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	vec, err := r.index.EmbedQuery(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	hits, err := r.store.Nearest(ctx, r.index.IndexName(mode), vec, limit*2)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	kept := make([]models.ScoredEntity, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > limit {
		kept = kept[:limit]
	}

	res := models.EmptySearchResult(VectorStrategy(mode))
	res.Entities = kept
	r.expand(ctx, res)
	return res, nil
}

// Fulltext runs a keyword query and returns the hits with the relations among them.
func (r *Router) Fulltext(ctx context.Context, query string, limit int) (*models.SearchResult, error) {
	if limit <= 0 {
		limit = r.opts.Limit
	}
	hits, err := r.store.Fulltext(ctx, r.index.FulltextIndex(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	res := models.EmptySearchResult(StrategyFulltext)
	res.Entities = hits
	if len(hits) == 0 {
		return res, nil
	}

	names := make([]string, 0, len(hits))
	for _, h := range hits {
		names = append(names, h.Name)
	}
	g, err := r.store.FindByNames(ctx, names)
	if err != nil {
		r.logger.Warn("loading relations for fulltext hits", "error", err)
		return res, nil
	}
	res.Relations = relationsWithin(g.Relations, names)
	return res, nil
}

// FindByName returns entities whose names match exactly. No embeddings are involved.
func (r *Router) FindByName(ctx context.Context, names []string) (*models.KnowledgeGraph, error) {
	g, err := r.store.FindByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	return g, nil
}

// ReadAll returns the whole graph.
func (r *Router) ReadAll(ctx context.Context) (*models.KnowledgeGraph, error) {
	g, err := r.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return g, nil
}

func (r *Router) exact(ctx context.Context, names []string) (*models.SearchResult, error) {
	g, err := r.store.FindByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	res := models.EmptySearchResult(StrategyExact)
	for _, e := range g.Entities {
		res.Entities = append(res.Entities, models.ScoredEntity{Entity: e, Score: 1})
	}
	res.Relations = g.Relations
	return res, nil
}

// expand adds neighbors and incident relations of every hit. Failures only
// cost the enrichment, never the hits themselves.
func (r *Router) expand(ctx context.Context, res *models.SearchResult) {
	seenEntity := make(map[models.MergeKey]struct{}, len(res.Entities))
	for _, h := range res.Entities {
		seenEntity[h.Key()] = struct{}{}
	}
	seenRel := map[models.Relation]struct{}{}

	for _, h := range res.Entities {
		nb, err := r.store.Neighborhood(ctx, h.Key(), r.opts.MaxRelated, r.opts.MaxRelations)
		if err != nil {
			r.logger.Warn("expanding search hit", "name", h.Name, "type", h.Type, "error", err)
			continue
		}
		for _, e := range nb.Related {
			if _, ok := seenEntity[e.Key()]; ok {
				continue
			}
			seenEntity[e.Key()] = struct{}{}
			res.Related = append(res.Related, e)
		}
		for _, rel := range nb.Relations {
			if _, ok := seenRel[rel]; ok {
				continue
			}
			seenRel[rel] = struct{}{}
			res.Relations = append(res.Relations, rel)
		}
	}
}

func (r *Router) observe(strategy string, start time.Time) {
	metrics.Searches.WithLabelValues(strategy).Inc()
	metrics.SearchLatency.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

func relationsWithin(rels []models.Relation, names []string) []models.Relation {
	in := make(map[string]struct{}, len(names))
	for _, n := range names {
		in[n] = struct{}{}
	}
	out := []models.Relation{}
	for _, rel := range rels {
		_, src := in[rel.Source]
		_, tgt := in[rel.Target]
		if src && tgt {
			out = append(out, rel)
		}
	}
	return out
}
