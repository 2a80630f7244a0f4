package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
}

// Server is the TraceHub HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New creates a Server with all routes registered and middleware applied.
func New(cfg ServerConfig, h *Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Ingest surface. Auth runs inside the handlers: the ingest endpoints
	// use the key-activating resolver, everything else the plain one.
	mux.HandleFunc("POST /api/v1/ingest/traces", h.HandleIngestTraces)
	mux.HandleFunc("POST /api/v1/ingest/spans", h.HandleIngestSpans)
	mux.HandleFunc("POST /api/v1/evals", h.HandleCreateEval)

	// Trace read models.
	mux.HandleFunc("GET /api/v1/traces", h.HandleListTraces)
	mux.HandleFunc("GET /api/v1/traces/stats/overview", h.HandleTraceStats)
	mux.HandleFunc("GET /api/v1/traces/{id}", h.HandleGetTrace)

	// Decision pipeline.
	mux.HandleFunc("POST /api/v1/decide", h.HandleDecide)

	// Policy management.
	mux.HandleFunc("POST /api/v1/policies", h.HandleCreatePolicy)
	mux.HandleFunc("GET /api/v1/policies", h.HandleListPolicies)
	mux.HandleFunc("GET /api/v1/policies/{id}/versions", h.HandleListPolicyVersions)
	mux.HandleFunc("POST /api/v1/policies/{id}/activate", h.HandleActivatePolicyVersion)

	// Case workflow.
	mux.HandleFunc("GET /api/v1/cases", h.HandleListCases)
	mux.HandleFunc("GET /api/v1/cases/{id}", h.HandleGetCase)
	mux.HandleFunc("POST /api/v1/cases/{id}/ack", h.HandleAcknowledgeCase)
	mux.HandleFunc("POST /api/v1/cases/{id}/resolve", h.HandleResolveCase)

	// Tenant administration.
	mux.HandleFunc("POST /api/v1/projects", h.HandleCreateProject)
	mux.HandleFunc("GET /api/v1/projects", h.HandleListProjects)
	mux.HandleFunc("POST /api/v1/projects/{id}/rotate-key", h.HandleRotateProjectKey)
	mux.HandleFunc("POST /api/v1/projects/{id}/activate", h.HandleActivateProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/deactivate", h.HandleDeactivateProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", h.HandleDeleteProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/current-key", h.HandleGetProjectCurrentKey)

	// Health.
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)

	// Middleware, innermost applied last: request ID, security headers,
	// tracing, logging, body limit, recovery.
	var handler http.Handler = mux
	handler = recoveryMiddleware(logger, handler)
	handler = bodyLimitMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = loggingMiddleware(logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  logger,
	}
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
