// Package metrics provides application-level Prometheus collectors registered
// on the default registry and served by the HTTP API on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Knowledge-graph mutation counters.
var (
	EntitiesMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_graph_entities_merged_total",
		Help: "Entities passed through the merge resolver, by outcome (created, updated, failed).",
	}, []string{"outcome"})

	ObservationsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortex_graph_observations_added_total",
		Help: "Observations appended to entities.",
	})

	RelationsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortex_graph_relations_merged_total",
		Help: "Relations created or matched.",
	})
)

// Embedding and indexing.
var (
	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_graph_embedding_requests_total",
		Help: "Embedding provider calls, by kind (entity, relation, query) and result (ok, error).",
	}, []string{"kind", "result"})

	BackfillIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_graph_backfill_entities_total",
		Help: "Entities processed by backfill runs, by result (indexed, failed).",
	}, []string{"result"})

	BackfillRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_graph_backfill_runs_total",
		Help: "Backfill runs, by trigger (startup, lazy, manual).",
	}, []string{"trigger"})
)

// Search.
var (
	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_graph_searches_total",
		Help: "Search requests, by strategy that produced the result.",
	}, []string{"strategy"})

	SearchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortex_graph_search_fallbacks_total",
		Help: "Searches that fell back to fulltext after a failed or empty semantic search.",
	})

	SearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cortex_graph_search_duration_seconds",
		Help:    "Search latency by strategy.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})
)
