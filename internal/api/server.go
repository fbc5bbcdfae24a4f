package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
	"github.com/fieldnodes/field-nodes/internal/suggest"
)

// Server is an HTTP API server that exposes node operations.
type Server struct {
	store       store.NodeStore
	suggester   suggest.Suggester
	logger      *slog.Logger
	authToken   string // empty = no auth required
	corsOrigins []string
}

// NewServer creates a new Server with the given dependencies.
func NewServer(st store.NodeStore, sugg suggest.Suggester, logger *slog.Logger, authToken string, corsOrigins []string) *Server {
	return &Server{
		store:       st,
		suggester:   sugg,
		logger:      logger,
		authToken:   authToken,
		corsOrigins: corsOrigins,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Health and metrics stay open for probes and scrapers.
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Post("/", s.handleCreateNode)
			r.Get("/{id}", s.handleGetNode)
			r.Patch("/{id}", s.handleUpdateNode)
			r.Delete("/{id}", s.handleDeleteNode)
			r.Post("/{id}/connections", s.handleConnect)
			r.Get("/{id}/suggestions", s.handleSuggest)
		})
		r.Post("/search", s.handleSearch)
		r.Get("/fields", s.handleFields)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// --- middleware ---

// auth enforces Bearer token authentication when authToken is set.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument logs each request and counts it by route pattern, so node IDs
// never become label values.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Counters(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listResponse wraps node listings.
type listResponse struct {
	Nodes []models.Node `json:"nodes"`
	Count int           `json:"count"`
}

// handleListNodes lists every node, or filters by the status, author,
// field and tag query parameters when any is given.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := models.SearchOptions{
		Field:     q.Get("field"),
		Status:    models.NodeStatus(q.Get("status")),
		Author:    q.Get("author"),
		Tags:      q["tag"],
		SortBy:    models.SortBy(q.Get("sort")),
		SortOrder: models.SortOrder(q.Get("order")),
	}
	var (
		nodes []models.Node
		err   error
	)
	if opts.Field == "" && opts.Status == "" && opts.Author == "" && len(opts.Tags) == 0 && opts.SortBy == "" {
		nodes, err = s.store.ListNodes(r.Context())
	} else {
		if verr := models.Validate(opts); verr != nil {
			s.writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		nodes, err = s.store.SearchAdvanced(r.Context(), opts)
	}
	if err != nil {
		s.logger.Error("failed to list nodes", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Nodes: nodes, Count: len(nodes)})
}

// createRequest is the body accepted by POST /v1/nodes.
type createRequest struct {
	Type    models.NodeType   `json:"type" validate:"omitempty,oneof=RN CN SN RF SY"`
	Title   string            `json:"title" validate:"required,max=280"`
	Thought string            `json:"thought" validate:"max=1000"`
	Author  string            `json:"author" validate:"required"`
	Tags    []string          `json:"tags"`
	Sources []string          `json:"sources" validate:"dive,url"`
	Status  models.NodeStatus `json:"status" validate:"omitempty,oneof=draft grounded reviewed canonical needs_revision"`
}

func (req createRequest) node() models.Node {
	n := models.Node{
		Title:         strings.TrimSpace(req.Title),
		Thought:       strings.TrimSpace(req.Thought),
		Author:        req.Author,
		Tags:          req.Tags,
		Status:        req.Status,
		SystemContext: models.RawSystemContext,
		Origin:        models.Origin{Type: models.OriginOther, Description: "No source provided"},
	}
	if len(req.Sources) > 0 {
		n.Origin.Description = strings.Join(req.Sources, ", ")
	}
	for _, src := range req.Sources {
		n.Artifacts = append(n.Artifacts, models.Artifact{
			Type:     models.ArtifactURL,
			URL:      src,
			Metadata: &models.ArtifactMetadata{Title: src},
		})
	}
	return n
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := models.Validate(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = models.NodeTypeRaw
	}

	n, err := s.store.CreateNode(r.Context(), req.node(), req.Type)
	if err != nil {
		s.storeError(w, "create node", "", err)
		return
	}
	metrics.Inc(metrics.NodesCreated)
	s.writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	n, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		s.storeError(w, "get node", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var patch models.NodePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := s.store.UpdateNode(r.Context(), id, patch)
	if err != nil {
		s.storeError(w, "update node", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	if err := s.store.DeleteNode(r.Context(), id); err != nil {
		s.storeError(w, "delete node", id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// connectRequest is the body accepted by POST /v1/nodes/{id}/connections.
type connectRequest struct {
	Target       string                  `json:"target" validate:"required"`
	Relationship models.RelationshipType `json:"relationship"`
	CreatedBy    string                  `json:"created_by"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := models.Validate(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Relationship == "" {
		req.Relationship = models.RelExpands
	}
	conn := models.Connection{
		SourceID:     id,
		TargetID:     strings.ToUpper(req.Target),
		Relationship: req.Relationship,
		CreatedBy:    req.CreatedBy,
	}
	if err := s.store.Connect(r.Context(), conn); err != nil {
		s.storeError(w, "connect nodes", id, err)
		return
	}
	metrics.Inc(metrics.ConnectionsCreated)
	s.writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	target, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		s.storeError(w, "get node", id, err)
		return
	}
	pool, err := s.store.ListNodes(r.Context())
	if err != nil {
		s.storeError(w, "list nodes", "", err)
		return
	}
	res, err := s.suggester.Suggest(r.Context(), target, pool)
	if err != nil {
		s.logger.Error("failed to suggest connections", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to suggest connections")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var opts models.SearchOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := models.Validate(opts); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	nodes, err := s.store.SearchAdvanced(r.Context(), opts)
	if err != nil {
		s.storeError(w, "search nodes", "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Nodes: nodes, Count: len(nodes)})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.store.ListFields(r.Context())
	if err != nil {
		s.storeError(w, "list fields", "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

// statsResponse is returned by GET /v1/stats.
type statsResponse struct {
	models.Stats
	ByType []models.TypeStats `json:"byType"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.storeError(w, "get stats", "", err)
		return
	}
	byType, err := s.store.StatsByType(r.Context())
	if err != nil {
		s.storeError(w, "get stats", "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Stats: stats, ByType: byType})
}

// --- helpers ---

// storeError maps store failures onto status codes: not-found 404,
// validation 400, anything else 500.
func (s *Server) storeError(w http.ResponseWriter, op, id string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalid):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		metrics.Inc(metrics.StorageErrors)
		s.logger.Error("store operation failed", "op", op, "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
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
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
