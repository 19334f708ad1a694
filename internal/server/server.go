// Package server implements the Stoxy HTTP server: a chi router carrying the
// health and metrics endpoints and a catch-all CDMI dispatcher.
package server

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stoxy/stoxy/internal/auth"
	"github.com/stoxy/stoxy/internal/config"
	stoxyerr "github.com/stoxy/stoxy/internal/errors"
	"github.com/stoxy/stoxy/internal/handlers"
)

// reservedRootNames are served by the router itself or by the object-ID view,
// whether or not the optional endpoints are enabled.
var reservedRootNames = map[string]bool{
	"health":                 true,
	"healthz":                true,
	"readyz":                 true,
	"metrics":                true,
	"docs":                   true,
	"schemas":                true,
	handlers.ObjectIDSegment: true,
}

// ReservedRootName reports whether name would be shadowed by a server route
// if used for a child of the root container.
func ReservedRootName(name string) bool {
	return reservedRootNames[name] || strings.HasPrefix(name, "openapi")
}

// CDMIHandler serves the CDMI methods.
type CDMIHandler interface {
	Get(w http.ResponseWriter, r *http.Request)
	Put(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Server is the Stoxy HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	cdmi       CDMIHandler
	principals *auth.Resolver
	checks     map[string]CheckFunc
	httpServer *http.Server
}

// CheckResult is the outcome of a single dependency check.
type CheckResult struct {
	Status    string `json:"status" example:"ok" doc:"ok or error"`
	LatencyMs int64  `json:"latency_ms" doc:"Check latency in milliseconds"`
	Error     string `json:"error,omitempty" doc:"Failure detail"`
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string                 `json:"status" example:"ok" doc:"Health status"`
	Checks map[string]CheckResult `json:"checks,omitempty" doc:"Per-dependency results"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Status int
	Body   HealthBody
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithPrincipalResolver enables token authentication on CDMI requests.
func WithPrincipalResolver(res *auth.Resolver) Option {
	return func(s *Server) {
		s.principals = res
	}
}

// WithCheck adds a named dependency check to /health and /readyz.
func WithCheck(name string, fn CheckFunc) Option {
	return func(s *Server) {
		s.checks[name] = fn
	}
}

// New creates a Server that dispatches every non-system path to cdmi.
func New(cfg *config.Config, cdmi CDMIHandler, opts ...Option) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("Stoxy CDMI API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
		cdmi:   cdmi,
		checks: make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the router wrapped in the middleware chain:
// metricsMiddleware -> commonHeaders -> authMiddleware -> router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	if s.principals != nil {
		handler = auth.Middleware(s.principals)(handler)
	}
	handler = commonHeaders(handler)
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router.
// Huma routes (/health, /docs, /openapi.json) and /metrics are registered first.
// The CDMI catch-all /* is registered last.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the Stoxy server and, when enabled, its dependencies.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		out := &HealthOutput{Status: http.StatusOK, Body: HealthBody{Status: "ok"}}
		if !s.cfg.Observability.HealthCheck || len(s.checks) == 0 {
			return out, nil
		}
		results, ok := s.runChecks(ctx)
		out.Body.Checks = results
		if !ok {
			out.Status = http.StatusServiceUnavailable
			out.Body.Status = "degraded"
		}
		return out, nil
	})

	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	if s.cfg.Observability.HealthCheck {
		// Liveness: the process answers.
		s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		// Readiness: every dependency answers.
		s.router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			if _, ok := s.runChecks(r.Context()); !ok {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	}

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.HandleFunc("/*", s.dispatch)
}

// runChecks runs every dependency check with a shared deadline.
func (s *Server) runChecks(ctx context.Context) (map[string]CheckResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]CheckResult, len(names))
	ok := true
	for _, name := range names {
		start := time.Now()
		err := s.checks[name](ctx)
		res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			res.Status = "error"
			res.Error = err.Error()
			ok = false
		}
		results[name] = res
	}
	return results, ok
}

// dispatch routes CDMI requests by method. The path itself is resolved by the
// handler against the hierarchy.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.cdmi.Get(w, r)
	case http.MethodPut:
		s.cdmi.Put(w, r)
	case http.MethodDelete:
		s.cdmi.Delete(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeError(w, stoxyerr.ErrMethodNotAllowed.WithMessage("method %s not supported", r.Method))
	}
}
