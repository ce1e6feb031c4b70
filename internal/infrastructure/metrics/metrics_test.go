package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/mqtt2influx/internal/ingest"
	"github.com/nerrad567/mqtt2influx/internal/subscriber"
)

// Compile-time interface checks.
var (
	_ ingest.Recorder          = (*Metrics)(nil)
	_ subscriber.StateObserver = (*Metrics)(nil)
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, reg
}

func TestMetrics_Counters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.MessageReceived()
	m.MessageReceived()
	m.MessageUnrouted()
	m.DecodeFailed("unparseable")
	m.DecodeFailed("unparseable")
	m.DecodeFailed("invalid_field_type")
	m.PointStored("temperature", 10*time.Millisecond)
	m.StoreFailed("temperature", time.Second)

	if got := testutil.ToFloat64(m.received); got != 2 {
		t.Errorf("received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.unrouted); got != 1 {
		t.Errorf("unrouted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decodeFailures.WithLabelValues("unparseable")); got != 2 {
		t.Errorf("decode failures{unparseable} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.decodeFailures.WithLabelValues("invalid_field_type")); got != 1 {
		t.Errorf("decode failures{invalid_field_type} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.stored.WithLabelValues("temperature")); got != 1 {
		t.Errorf("stored{temperature} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.storeFailures.WithLabelValues("temperature")); got != 1 {
		t.Errorf("store failures{temperature} = %v, want 1", got)
	}
	if samples := testutil.CollectAndCount(m.storeDuration); samples != 1 {
		t.Errorf("store duration histogram series = %d, want 1", samples)
	}
}

func TestMetrics_SessionState(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SessionState(subscriber.StateConnected)
	if got := testutil.ToFloat64(m.sessionState); got != 2 {
		t.Errorf("session_state = %v, want 2", got)
	}

	m.SessionState(subscriber.StateDisconnected)
	if got := testutil.ToFloat64(m.sessionState); got != 0 {
		t.Errorf("session_state = %v, want 0", got)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.MessageReceived()

	expected := `
# HELP mqtt2influx_messages_received_total MQTT messages delivered to the router.
# TYPE mqtt2influx_messages_received_total counter
mqtt2influx_messages_received_total 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "mqtt2influx_messages_received_total")
	if err != nil {
		t.Errorf("exposition mismatch: %v", err)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second New() on the same registry should fail")
	}
}
