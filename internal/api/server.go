package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/mqtt2influx/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2influx/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2influx/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Server timeouts. Every endpoint is cheap, so these are fixed.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// HealthChecker is implemented by components that can report their health.
// subscriber.Session and influxdb.Client satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouteLister exposes the configured routes. *ingest.Router satisfies it.
type RouteLister interface {
	Routes() []ingest.Route
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config   config.StatusConfig
	Logger   *logging.Logger
	Checks   map[string]HealthChecker
	Routes   RouteLister
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the status HTTP server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg      config.StatusConfig
	logger   *logging.Logger
	checks   map[string]HealthChecker
	routes   RouteLister
	gatherer prometheus.Gatherer
	version  string

	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// New creates a new status server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, gatherer); checks and routes are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gatherer == nil {
		return nil, fmt.Errorf("metrics gatherer is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		checks:   deps.Checks,
		routes:   deps.Routes,
		gatherer: deps.Gatherer,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener is bound synchronously so a port conflict is reported here;
// requests are served in a background goroutine until Close().
//
// Returns:
//   - error: If the server fails to bind (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("status server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("status server starting", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the status server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
