package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/mqtt2influx/internal/subscriber"
)

// Namespace prefixes every metric name.
const Namespace = "mqtt2influx"

// Metrics holds the Prometheus collectors for the ingestion pipeline.
//
// It implements ingest.Recorder and subscriber.StateObserver.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Metrics struct {
	received       prometheus.Counter
	unrouted       prometheus.Counter
	decodeFailures *prometheus.CounterVec
	stored         *prometheus.CounterVec
	storeFailures  *prometheus.CounterVec
	storeDuration  prometheus.Histogram
	sessionState   prometheus.Gauge
}

// New creates the collectors and registers them on reg.
//
// Parameters:
//   - reg: Registry to register on (use prometheus.NewRegistry in tests)
//
// Returns:
//   - *Metrics: Ready-to-use metrics
//   - error: If a collector with the same name is already registered
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_received_total",
			Help:      "MQTT messages delivered to the router.",
		}),
		unrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_unrouted_total",
			Help:      "Messages whose topic matched no configured sensor.",
		}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_failures_total",
			Help:      "Payloads dropped because they could not be decoded.",
		}, []string{"reason"}),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "points_stored_total",
			Help:      "Points acknowledged by InfluxDB.",
		}, []string{"measurement"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_failures_total",
			Help:      "Points dropped because the InfluxDB write failed.",
		}, []string{"measurement"}),
		storeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "store_duration_seconds",
			Help:      "Time spent writing one point to InfluxDB.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_state",
			Help:      "Broker session state: 0 disconnected, 1 connecting, 2 connected.",
		}),
	}

	collectors := []prometheus.Collector{
		m.received,
		m.unrouted,
		m.decodeFailures,
		m.stored,
		m.storeFailures,
		m.storeDuration,
		m.sessionState,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// MessageReceived counts a delivered message.
func (m *Metrics) MessageReceived() {
	m.received.Inc()
}

// MessageUnrouted counts a message with no matching route.
func (m *Metrics) MessageUnrouted() {
	m.unrouted.Inc()
}

// DecodeFailed counts a dropped payload by failure reason.
func (m *Metrics) DecodeFailed(reason string) {
	m.decodeFailures.WithLabelValues(reason).Inc()
}

// PointStored counts a successful write and observes its duration.
func (m *Metrics) PointStored(measurement string, took time.Duration) {
	m.stored.WithLabelValues(measurement).Inc()
	m.storeDuration.Observe(took.Seconds())
}

// StoreFailed counts a failed write and observes its duration.
func (m *Metrics) StoreFailed(measurement string, took time.Duration) {
	m.storeFailures.WithLabelValues(measurement).Inc()
	m.storeDuration.Observe(took.Seconds())
}

// SessionState records the broker session state.
func (m *Metrics) SessionState(state subscriber.State) {
	m.sessionState.Set(float64(state))
}
