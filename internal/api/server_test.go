package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/mqtt2influx/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2influx/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2influx/internal/ingest"
)

// checkFunc adapts a function to HealthChecker.
type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// staticRoutes is a fixed RouteLister.
type staticRoutes []ingest.Route

func (r staticRoutes) Routes() []ingest.Route { return r }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

// testServer creates a Server with the given checks and a fresh registry.
func testServer(t *testing.T, checks map[string]HealthChecker) (*Server, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	srv, err := New(Deps{
		Config:   config.StatusConfig{Host: "127.0.0.1", Port: 0},
		Logger:   testLogger(),
		Checks:   checks,
		Routes:   staticRoutes{{Topic: "sensors/temp1", SensorID: "temp1", Measurement: "temperature"}},
		Gatherer: reg,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Gatherer: prometheus.NewRegistry()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without gatherer should fail")
	}
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHandleHealth_AllHealthy(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	srv, _ := testServer(t, map[string]HealthChecker{"mqtt": ok, "influxdb": ok})

	rec := get(t, srv.buildRouter(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("response = %+v, want status ok version test", resp)
	}
	if resp.Checks["mqtt"] != "ok" || resp.Checks["influxdb"] != "ok" {
		t.Errorf("checks = %v, want both ok", resp.Checks)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("influxdb: not connected") })
	srv, _ := testServer(t, map[string]HealthChecker{"mqtt": ok, "influxdb": down})

	rec := get(t, srv.buildRouter(), "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Checks["influxdb"] != "influxdb: not connected" {
		t.Errorf("influxdb check = %q, want error text", resp.Checks["influxdb"])
	}
	if resp.Checks["mqtt"] != "ok" {
		t.Errorf("mqtt check = %q, want ok", resp.Checks["mqtt"])
	}
}

func TestHandleHealth_NoChecks(t *testing.T) {
	srv, _ := testServer(t, nil)

	if rec := get(t, srv.buildRouter(), "/health"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no checks", rec.Code)
	}
}

// =============================================================================
// Routes and Metrics Tests
// =============================================================================

func TestHandleRoutes(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := get(t, srv.buildRouter(), "/routes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var routes []RouteResponse
	if err := json.NewDecoder(rec.Body).Decode(&routes); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	want := RouteResponse{Topic: "sensors/temp1", SensorID: "temp1", Measurement: "temperature"}
	if len(routes) != 1 || routes[0] != want {
		t.Errorf("routes = %+v, want [%+v]", routes, want)
	}
}

func TestHandleRoutes_NilLister(t *testing.T) {
	srv, _ := testServer(t, nil)
	srv.routes = nil

	rec := get(t, srv.buildRouter(), "/routes")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, reg := testServer(t, nil)
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt2influx_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	rec := get(t, srv.buildRouter(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mqtt2influx_test_total 3") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t, nil)
	h := srv.buildRouter()

	if rec := get(t, h, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health status = %d, want 405", rec.Code)
	}
}

func TestErrorResponseCarriesRequestID(t *testing.T) {
	srv, _ := testServer(t, nil)
	h := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Code != "not_found" {
		t.Errorf("code = %q, want not_found", body.Code)
	}
	if body.RequestID != "req-42" {
		t.Errorf("request_id = %q, want req-42", body.RequestID)
	}
	if !strings.Contains(body.Message, "/nope") {
		t.Errorf("message = %q, want it to name the path", body.Message)
	}
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t, nil)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := get(t, h, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Code != "internal_error" {
		t.Errorf("code = %q, want internal_error", body.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	srv, _ := testServer(t, nil)
	h := srv.buildRouter()

	rec := get(t, h, "/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestStartAndClose(t *testing.T) {
	srv, _ := testServer(t, nil)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClose_NotStarted(t *testing.T) {
	srv, _ := testServer(t, nil)

	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start = %v, want nil", err)
	}
	if srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q, want empty", srv.Addr())
	}
}
