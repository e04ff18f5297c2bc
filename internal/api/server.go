package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/cortex-graph/internal/backfill"
	"github.com/ajitpratap0/cortex-graph/internal/memory"
	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/search"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// Graph is the knowledge-graph service exposed over HTTP.
type Graph interface {
	CreateEntities(ctx context.Context, entities []models.Entity) (*memory.CreateResult, error)
	CreateRelations(ctx context.Context, relations []models.Relation) (*memory.RelationResult, error)
	AddObservations(ctx context.Context, additions []models.ObservationAddition) ([]models.ObservationResult, error)
	DeleteEntities(ctx context.Context, names []string) (int64, error)
	DeleteObservations(ctx context.Context, deletions []models.ObservationDeletion) (int, error)
	DeleteRelations(ctx context.Context, relations []models.Relation) (int64, error)
	ReadGraph(ctx context.Context) (*models.KnowledgeGraph, error)
	SearchNodes(ctx context.Context, query string, limit int) *models.SearchResult
	FindNodes(ctx context.Context, names []string) (*models.KnowledgeGraph, error)
	VectorSearch(ctx context.Context, q search.VectorQuery) (*models.SearchResult, error)
	Stats(ctx context.Context) (*models.GraphStats, error)
	EnsureAllIndexed(ctx context.Context) (*backfill.Report, error)
	Health(ctx context.Context) memory.Health
}

// Options configures the HTTP server.
type Options struct {
	AuthToken string  // empty = no auth required
	RateLimit float64 // requests per second; 0 disables limiting
	RateBurst int
}

// Server is an HTTP API server that exposes knowledge-graph operations.
type Server struct {
	graph     Graph
	logger    *slog.Logger
	authToken string
	limiter   *rate.Limiter
}

// NewServer creates a new Server with the given dependencies.
func NewServer(graph Graph, logger *slog.Logger, opts Options) *Server {
	s := &Server{
		graph:     graph,
		logger:    logger,
		authToken: opts.AuthToken,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics: no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/entities", s.auth(s.handleCreateEntities))
	mux.HandleFunc("DELETE /v1/entities", s.auth(s.handleDeleteEntities))
	mux.HandleFunc("POST /v1/relations", s.auth(s.handleCreateRelations))
	mux.HandleFunc("DELETE /v1/relations", s.auth(s.handleDeleteRelations))
	mux.HandleFunc("POST /v1/observations", s.auth(s.handleAddObservations))
	mux.HandleFunc("DELETE /v1/observations", s.auth(s.handleDeleteObservations))
	mux.HandleFunc("GET /v1/graph", s.auth(s.handleReadGraph))
	mux.HandleFunc("POST /v1/search", s.auth(s.handleSearch))
	mux.HandleFunc("POST /v1/search/vector", s.auth(s.handleVectorSearch))
	mux.HandleFunc("POST /v1/nodes/find", s.auth(s.handleFindNodes))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))
	mux.HandleFunc("POST /v1/backfill", s.auth(s.handleBackfill))

	return s.requestID(s.rateLimit(mux))
}

// --- middleware ---

// requestID tags every request with an X-Request-ID, reusing the caller's.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("api request", "method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
	})
}

// rateLimit rejects requests beyond the configured token bucket.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h := s.graph.Health(r.Context())
	status := http.StatusOK
	if !h.OK() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

type entitiesRequest struct {
	Entities []models.Entity `json:"entities"`
}

func (s *Server) handleCreateEntities(w http.ResponseWriter, r *http.Request) {
	var req entitiesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Entities) == 0 {
		s.writeError(w, http.StatusBadRequest, "entities is required")
		return
	}
	res, err := s.graph.CreateEntities(r.Context(), req.Entities)
	if err != nil {
		s.fail(w, "create entities", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type namesRequest struct {
	Names []string `json:"names"`
}

func (s *Server) handleDeleteEntities(w http.ResponseWriter, r *http.Request) {
	var req namesRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.graph.DeleteEntities(r.Context(), req.Names)
	if err != nil {
		s.fail(w, "delete entities", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type relationsRequest struct {
	Relations []models.Relation `json:"relations"`
}

func (s *Server) handleCreateRelations(w http.ResponseWriter, r *http.Request) {
	var req relationsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.graph.CreateRelations(r.Context(), req.Relations)
	if err != nil {
		s.fail(w, "create relations", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteRelations(w http.ResponseWriter, r *http.Request) {
	var req relationsRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.graph.DeleteRelations(r.Context(), req.Relations)
	if err != nil {
		s.fail(w, "delete relations", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type addObservationsRequest struct {
	Observations []models.ObservationAddition `json:"observations"`
}

func (s *Server) handleAddObservations(w http.ResponseWriter, r *http.Request) {
	var req addObservationsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.graph.AddObservations(r.Context(), req.Observations)
	if err != nil {
		s.fail(w, "add observations", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type deleteObservationsRequest struct {
	Deletions []models.ObservationDeletion `json:"deletions"`
}

func (s *Server) handleDeleteObservations(w http.ResponseWriter, r *http.Request) {
	var req deleteObservationsRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.graph.DeleteObservations(r.Context(), req.Deletions)
	if err != nil {
		s.fail(w, "delete observations", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleReadGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph.ReadGraph(r.Context())
	if err != nil {
		s.fail(w, "read graph", err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

// searchRequest is the body accepted by POST /v1/search.
type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.graph.SearchNodes(r.Context(), req.Query, req.Limit))
}

// vectorSearchRequest is the body accepted by POST /v1/search/vector.
type vectorSearchRequest struct {
	Query     string   `json:"query"`
	Mode      string   `json:"mode"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req vectorSearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	res, err := s.graph.VectorSearch(r.Context(), search.VectorQuery{
		Query:     req.Query,
		Mode:      req.Mode,
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		s.fail(w, "vector search", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFindNodes(w http.ResponseWriter, r *http.Request) {
	var req namesRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.graph.FindNodes(r.Context(), req.Names)
	if err != nil {
		s.fail(w, "find nodes", err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.graph.Stats(r.Context())
	if err != nil {
		s.fail(w, "get stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	report, err := s.graph.EnsureAllIndexed(r.Context())
	if err != nil {
		s.fail(w, "backfill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps a service error to a status code: validation errors are the
// caller's fault, everything else is ours.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if models.IsValidation(err) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("failed to "+op, "error", err)
	s.writeError(w, http.StatusInternalServerError, "failed to "+op)
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
