package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 5 * time.Second

// Health status values.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// RouteResponse is one entry of the /routes body.
type RouteResponse struct {
	Topic       string `json:"topic"`
	SensorID    string `json:"sensor_node"`
	Measurement string `json:"measurement"`
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/routes", s.handleRoutes)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, codeNotFound, "no such endpoint: "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, codeMethodNotAllowed, req.Method+" not allowed on "+req.URL.Path)
	})

	return r
}

// handleHealth runs every registered check and reports 200 when all pass,
// 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  statusOK,
		Version: s.version,
		Checks:  make(map[string]string, len(s.checks)),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()

		if err != nil {
			resp.Status = statusDegraded
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = statusOK
	}

	status := http.StatusOK
	if resp.Status != statusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleRoutes lists the configured routes in match order.
func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	out := []RouteResponse{}
	if s.routes != nil {
		for _, rt := range s.routes.Routes() {
			out = append(out, RouteResponse{
				Topic:       rt.Topic,
				SensorID:    rt.SensorID,
				Measurement: rt.Measurement,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}
