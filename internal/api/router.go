package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupPipeline creates the router and installs the middleware chain.
//
// The outer wrappers run first and are not part of the ordered pipeline:
// request ID, instrumentation, panic recovery and tracing. Recovery sits
// inside instrumentation so recovered 500s are counted. The pipeline
// stages follow in a fixed order: session, parameter pollution, security
// headers, CORS, compression, body parsing and (in development) request
// logging.
func (s *Server) setupPipeline(_ context.Context) error {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.instrumentMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.tracingMiddleware)

	r.Use(s.sessionMiddleware)
	r.Use(s.pollutionMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(compressionMiddleware)
	r.Use(s.bodyMiddleware)
	if s.cfg.IsDevelopment() {
		r.Use(s.loggingMiddleware)
	}

	s.router = r
	return nil
}

// setupRoutes mounts the route table under /api/v1.
func (s *Server) setupRoutes(_ context.Context) error {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/values", func(r chi.Router) {
			r.Get("/", s.handle(s.handleListValues))
			r.Post("/", s.handle(s.handleCreateValue))

			r.Get("/{id}", s.handle(s.handleGetValue))
			r.Put("/{id}", s.handle(s.handleReplaceValue))
			r.Patch("/{id}", s.handle(s.handleUpdateValue))
			r.Delete("/{id}", s.handle(s.handleDeleteValue))
		})
	})
	return nil
}

// setupMonitoring mounts the JSON summary and the Prometheus exposition.
func (s *Server) setupMonitoring(_ context.Context) error {
	s.router.Get("/api-monitoring", s.handle(s.handleMonitoring))
	s.router.Method(http.MethodGet, "/api-monitoring/metrics", s.metricsHandler())
	return nil
}

// setupErrorBoundary installs the catch-all for unmatched routes and methods.
// Errors returned by handlers are translated by handle.
func (s *Server) setupErrorBoundary(_ context.Context) error {
	s.router.NotFound(s.notFound)
	s.router.MethodNotAllowed(s.notFound)
	return nil
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
