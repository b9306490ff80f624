// Package httpapi implements the REST/SSE/WS boundary (spec §6): versioned
// under /api/v1, backed by the already-constructed validator.Validator,
// jobs.Manager, events.Bus/Store and metrics.Metrics.
// Grounded on original_source/vpn_merger/api/rest_endpoints.py's FastAPI
// router, reworked onto gorilla/mux and net/http.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"vpnagg/internal/aggregator/events"
	"vpnagg/internal/aggregator/jobs"
	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/validator"
)

// Options configures the boundary concerns spec §6's environment variables
// describe; all three are optional. An empty APIToken or TenantTokensRaw
// disables that feature; an empty OutputDir falls back to "output".
type Options struct {
	APIToken        string // API_TOKEN
	TenantTokensRaw string // TENANT_TOKENS
	OutputDir       string // OUTPUT_DIR
}

// Server holds every dependency a handler needs, injected rather than
// reached for via a global — the same discipline jobs.Manager and
// merger.Merger already follow.
type Server struct {
	validator *validator.Validator
	jobs      *jobs.Manager
	bus       *events.Bus
	store     *events.Store
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	apiToken  string
	tenants   tenantTokens
	outputDir string

	limiter *slidingWindowLimiter
}

// New constructs a Server. Any dependency may be nil in tests that don't
// exercise the handlers touching it (e.g. bus/store for /health).
func New(v *validator.Validator, jm *jobs.Manager, bus *events.Bus, store *events.Store, m *metrics.Metrics, logger zerolog.Logger, opts Options) *Server {
	if opts.OutputDir == "" {
		opts.OutputDir = "output"
	}
	return &Server{
		validator: v,
		jobs:      jm,
		bus:       bus,
		store:     store,
		metrics:   m,
		logger:    logger,
		apiToken:  opts.APIToken,
		tenants:   parseTenantTokens(opts.TenantTokensRaw),
		outputDir: opts.OutputDir,
		limiter:   newSlidingWindowLimiter(),
	}
}

// Router builds the gorilla/mux router for the /api/v1 surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	api.HandleFunc("/run/merge", s.handleRunMerge).Methods(http.MethodPost)
	api.HandleFunc("/sub/{format}", s.handleSub).Methods(http.MethodGet)
	api.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/format", s.handleFormat).Methods(http.MethodPost)
	api.HandleFunc("/filter", s.handleFilter).Methods(http.MethodPost)
	api.HandleFunc("/score", s.handleScore).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/stream", s.handleEventsStream).Methods(http.MethodGet)
	api.HandleFunc("/events/ws", s.handleEventsWS).Methods(http.MethodGet)

	return r
}

// ListenAndServe starts the HTTP server on addr with explicit read/write/
// idle timeouts rather than relying on net/http's zero-value defaults.
func (s *Server) ListenAndServe(addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("httpapi listening")
	return httpServer.ListenAndServe()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// allow applies the boundary's per-IP and per-tenant sliding window (spec
// §6 "Rate limiting on the boundary"), writing 429 and returning false on
// rejection.
func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	ip := clientIP(r)
	tenant := s.tenants.resolve(r)
	if tenant == "" {
		tenant = "__no_tenant__"
	}
	if !s.limiter.allow("ip:" + ip) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return false
	}
	if !s.limiter.allow("tenant:" + tenant) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

// requireToken enforces API_TOKEN (spec §6's "optional bearer token") for
// handlers that gate on it, such as /sub/*, accepting any form checkToken
// reads. /events/stream and /events/ws do not use it: they call
// requireQueryToken (matching rest_endpoints.py's stricter query-only check
// for the streaming endpoints).
func (s *Server) requireToken(w http.ResponseWriter, r *http.Request) bool {
	if !checkToken(s.apiToken, r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

