// Package api implements the ClaireVue HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/nugget/clairevue/internal/buildinfo"
	"github.com/nugget/clairevue/internal/connwatch"
	"github.com/nugget/clairevue/internal/events"
	"github.com/nugget/clairevue/internal/orchestrator"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// HealthSource reports dependency health for GET /health.
// *connwatch.Manager satisfies it.
type HealthSource interface {
	Status() []connwatch.ServiceStatus
	Healthy() bool
}

// Server is the HTTP API server.
type Server struct {
	address     string
	port        int
	orch        *orchestrator.Orchestrator
	sessions    *orchestrator.Sessions
	health      HealthSource
	events      *events.Bus
	corsOrigins []string
	logger      *slog.Logger
	server      *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		orch:     orch,
		sessions: orchestrator.NewSessions(orch, 0),
		logger:   logger.With("component", "api"),
	}
}

// SetHealth configures the dependency health source for /health.
func (s *Server) SetHealth(h HealthSource) {
	s.health = h
}

// SetEvents configures the event bus behind the /v1/events feed.
func (s *Server) SetEvents(b *events.Bus) {
	s.events = b
}

// SetCORSOrigins sets the browser origins allowed to call the API and
// open the event feed. Empty or "*" allows any origin.
func (s *Server) SetCORSOrigins(origins []string) {
	s.corsOrigins = origins
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Query endpoints
	mux.HandleFunc("POST /v1/search", s.handleSearch)
	mux.HandleFunc("GET /v1/youtube", s.handleYouTube)
	mux.HandleFunc("GET /v1/images", s.handleImages)

	// Operational endpoints
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	h := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", sessionHeader},
		ExposedHeaders: []string{sessionHeader},
		MaxAge:         600,
	}).Handler(mux)
	return s.withLogging(h)
}

func (s *Server) allowedOrigins() []string {
	if len(s.corsOrigins) == 0 {
		return []string{"*"}
	}
	return s.corsOrigins
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No ReadTimeout or WriteTimeout: either would cut long-lived
		// streams short. Streaming handlers set per-event deadlines.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "ClaireVue",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string                    `json:"status"`
	Uptime       string                    `json:"uptime"`
	Dependencies []connwatch.ServiceStatus `json:"dependencies"`
}

// handleHealth always answers 200: a down dependency degrades
// capabilities but the server keeps answering what it can.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "healthy",
		Uptime:       buildinfo.Uptime().Round(time.Second).String(),
		Dependencies: []connwatch.ServiceStatus{},
	}
	if s.health != nil {
		resp.Dependencies = s.health.Status()
		if !s.health.Healthy() {
			resp.Status = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	}, s.logger)
}
