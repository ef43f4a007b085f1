// Package api provides the HTTP API server for the resource graph
// service: state-document parsing, on-demand discovery, cross-source
// correlation and health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"resource-graph/db/store"
	"resource-graph/internal/correlate"
	"resource-graph/internal/discovery"
	"resource-graph/internal/enrich"
	"resource-graph/internal/state"
	"resource-graph/pkg/api"
	"resource-graph/pkg/confidence"
	"resource-graph/pkg/platform"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	adapters   map[string]discovery.Adapter
	parser     *state.Parser
	sink       store.GraphStore
	enricher   *enrich.Pipeline
	config     *Config
	logger     *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	RequireAuth    bool // basic auth from AUTH_USER/AUTH_PASS on /api/v1
}

// DefaultConfig returns default server configuration. Port and auth fall
// back to the same environment variables the CLI flags bind.
func DefaultConfig() *Config {
	return &Config{
		Port:           platform.GetEnvInt("GRAPHSCAN_PORT", 8080),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		CORSOrigins:    []string{"*"},
		RequireAuth:    platform.GetEnvBool("GRAPHSCAN_REQUIRE_AUTH", false),
	}
}

// NewServer creates a new API server. The sink is optional; without one
// results are returned to the caller and not persisted.
func NewServer(adapters map[string]discovery.Adapter, sink store.GraphStore, config *Config, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if adapters == nil {
		adapters = map[string]discovery.Adapter{}
	}
	return &Server{
		adapters: adapters,
		parser:   state.NewParser(logger),
		sink:     sink,
		config:   config,
		logger:   logger,
	}
}

// WithEnricher attaches an enrichment pipeline that runs over every
// discovery result before it is persisted or returned.
func (s *Server) WithEnricher(p *enrich.Pipeline) *Server {
	s.enricher = p
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/api/v1/sources", s.protect(s.handleListSources))
	mux.HandleFunc("/api/v1/discover", s.protect(s.handleDiscover))
	mux.HandleFunc("/api/v1/state/parse", s.protect(s.handleParseState))
	mux.HandleFunc("/api/v1/correlate", s.protect(s.handleCorrelate))

	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("api server starting", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains it on SIGINT or
// SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info("shutting down api server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// protect wraps a handler with basic auth when the server requires it.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	if !s.config.RequireAuth {
		return next
	}
	return platform.BasicAuthMiddleware(next)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method, "path", r.URL.Path,
			"remote", r.RemoteAddr, "request_id", requestID,
			"duration", time.Since(start).String())
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.sink != nil {
		if err := s.sink.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "graph store not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// SOURCE ENDPOINTS
// =============================================================================

// SourceResponse describes one registered discovery source.
type SourceResponse struct {
	Name                    string             `json:"name"`
	Provider                string             `json:"provider"`
	Healthy                 bool               `json:"healthy"`
	SupportsIncrementalSync bool               `json:"supports_incremental_sync"`
	ResourceTypes           []api.ResourceType `json:"resource_types"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := make([]SourceResponse, 0, len(names))
	for _, name := range names {
		adapter := s.adapters[name]
		resp = append(resp, SourceResponse{
			Name:                    name,
			Provider:                adapter.Provider(),
			Healthy:                 adapter.HealthCheck(ctx),
			SupportsIncrementalSync: adapter.SupportsIncrementalSync(),
			ResourceTypes:           adapter.SupportedResourceTypes(),
		})
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// DiscoverRequest triggers one discovery pass for a registered source.
type DiscoverRequest struct {
	Source       string   `json:"source"`
	Regions      []string `json:"regions,omitempty"`
	AccountScope string   `json:"account_scope,omitempty"`
	Concurrency  int      `json:"concurrency,omitempty"`
	Persist      bool     `json:"persist,omitempty"`
}

// DiscoverResponse wraps the result with the persisted snapshot id when a
// sink was used.
type DiscoverResponse struct {
	SnapshotID string               `json:"snapshot_id,omitempty"`
	Result     *api.DiscoveryResult `json:"result"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	adapter, ok := s.adapters[req.Source]
	if !ok {
		s.jsonError(w, http.StatusNotFound, fmt.Sprintf("unknown source: %s", req.Source))
		return
	}

	result, err := adapter.Discover(r.Context(), api.DiscoveryOptions{
		Regions:      req.Regions,
		AccountScope: req.AccountScope,
		Concurrency:  req.Concurrency,
	})
	if err != nil {
		s.jsonError(w, http.StatusUnprocessableEntity, fmt.Sprintf("discovery failed: %v", err))
		return
	}
	if s.enricher != nil {
		s.enricher.Apply(r.Context(), result)
	}

	resp := DiscoverResponse{Result: result}
	if req.Persist && s.sink != nil {
		snapID, err := store.Persist(r.Context(), s.sink, result)
		if err != nil {
			s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("failed to persist result: %v", err))
			return
		}
		resp.SnapshotID = snapID.String()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// STATE PARSE ENDPOINT
// =============================================================================

// ParseStateRequest carries one raw state document.
type ParseStateRequest struct {
	Document     json.RawMessage `json:"document"`
	AccountScope string          `json:"account_scope,omitempty"`
	Persist      bool            `json:"persist,omitempty"`
}

func (s *Server) handleParseState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req ParseStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Document) == 0 {
		s.jsonError(w, http.StatusBadRequest, "document is required")
		return
	}

	result, err := s.parser.ParseBytes(req.Document, api.DiscoveryOptions{
		AccountScope: req.AccountScope,
	})
	if err != nil {
		s.jsonError(w, http.StatusUnprocessableEntity, fmt.Sprintf("parse failed: %v", err))
		return
	}

	resp := DiscoverResponse{Result: result}
	if req.Persist && s.sink != nil {
		snapID, err := store.Persist(r.Context(), s.sink, result)
		if err != nil {
			s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("failed to persist result: %v", err))
			return
		}
		resp.SnapshotID = snapID.String()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// CORRELATE ENDPOINT
// =============================================================================

// CorrelateRequest carries independently produced result sets.
type CorrelateRequest struct {
	Results   []*api.DiscoveryResult `json:"results"`
	Threshold *float64               `json:"threshold,omitempty"`
}

// CorrelateResponse is the ranked match list. Matches below the threshold
// are included and flagged by the threshold echo; filtering is the
// caller's choice.
type CorrelateResponse struct {
	Matches   []correlate.Match `json:"matches"`
	Threshold float64           `json:"threshold"`
}

func (s *Server) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req CorrelateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Results) < 2 {
		s.jsonError(w, http.StatusBadRequest, "at least two result sets are required")
		return
	}

	threshold := correlate.DefaultThreshold
	if req.Threshold != nil {
		threshold = confidence.Clamp(*req.Threshold)
	}
	matches := correlate.Correlate(req.Results...)
	s.jsonResponse(w, http.StatusOK, CorrelateResponse{
		Matches:   matches,
		Threshold: threshold,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
