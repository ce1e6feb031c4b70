package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// defaultStoreTimeout bounds a single Sink.Store call.
const defaultStoreTimeout = 10 * time.Second

// Sink persists one decoded point.
//
// Implementations add the sensor_node tag themselves. The tags map passed
// by the Router is always empty and must not be retained.
type Sink interface {
	Store(ctx context.Context, sensorID, measurement string, tags map[string]string, fields map[string]float64) error
}

// Logger is the logging capability the Router needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder receives pipeline counters. See metrics.Metrics.
type Recorder interface {
	MessageReceived()
	MessageUnrouted()
	DecodeFailed(reason string)
	PointStored(measurement string, took time.Duration)
	StoreFailed(measurement string, took time.Duration)
}

// Outcome describes what happened to one message.
type Outcome int

// Message outcomes.
const (
	OutcomeStored Outcome = iota + 1
	OutcomeUnrouted
	OutcomeDecodeFailed
	OutcomeStoreFailed
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeUnrouted:
		return "unrouted"
	case OutcomeDecodeFailed:
		return "decode_failed"
	case OutcomeStoreFailed:
		return "store_failed"
	default:
		return "unknown"
	}
}

// Router matches inbound messages to routes, decodes them and forwards the
// fields to a Sink.
//
// Thread Safety:
//   - HandleMessage is safe for concurrent use; calls are serialised.
//   - The route table is read-only after NewRouter.
type Router struct {
	routes       []Route
	sink         Sink
	logger       Logger
	recorder     Recorder
	storeTimeout time.Duration

	// mu serialises HandleMessage so decode and store never overlap.
	mu sync.Mutex
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithStoreTimeout bounds each Sink.Store call. Zero keeps the default.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// NewRouter creates a Router over routes, which are copied.
//
// Returns an error if routes is empty or sink is nil.
func NewRouter(routes []Route, sink Sink, opts ...Option) (*Router, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("router requires at least one route")
	}
	if sink == nil {
		return nil, fmt.Errorf("router requires a sink")
	}

	r := &Router{
		routes:       append([]Route(nil), routes...),
		sink:         sink,
		logger:       slog.New(slog.DiscardHandler),
		recorder:     noopRecorder{},
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, rt := range r.routes {
		r.logger.Debug("route configured",
			"topic", rt.Topic,
			"sensor", rt.SensorID,
			"measurement", rt.Measurement,
		)
	}

	return r, nil
}

// Routes returns a copy of the route table in configured order.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Topics returns every distinct route topic once, in configured order.
func (r *Router) Topics() []string {
	return distinctTopics(r.routes)
}

// match returns the first route whose topic equals topic.
func (r *Router) match(topic string) (Route, bool) {
	for _, rt := range r.routes {
		if rt.Topic == topic {
			return rt, true
		}
	}
	return Route{}, false
}

// HandleMessage routes, decodes and stores one message.
//
// It never returns an error: unrouted messages are dropped silently, decode
// and store failures are logged and counted. The store call runs under its
// own timeout and is not interrupted when ctx is cancelled, so a shutdown
// lets the in-flight write finish.
func (r *Router) HandleMessage(ctx context.Context, topic string, payload []byte) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recorder.MessageReceived()

	route, ok := r.match(topic)
	if !ok {
		r.logger.Debug("no route for topic, dropping message", "topic", topic)
		r.recorder.MessageUnrouted()
		return OutcomeUnrouted
	}

	decoded, err := Decode(payload)
	if err != nil {
		r.logger.Warn("dropping undecodable payload",
			"topic", topic,
			"sensor", route.SensorID,
			"payload", string(payload),
			"error", err,
		)
		r.recorder.DecodeFailed(decodeFailureReason(err))
		return OutcomeDecodeFailed
	}

	r.logger.Debug("message decoded",
		"topic", topic,
		"sensor", route.SensorID,
		"measurement", route.Measurement,
		"mode", decoded.Mode.String(),
		"fields", len(decoded.Fields),
	)

	start := time.Now()
	if err := r.store(ctx, route, decoded.Fields); err != nil {
		took := time.Since(start)
		r.logger.Warn("point dropped",
			"topic", topic,
			"sensor", route.SensorID,
			"measurement", route.Measurement,
			"error", err,
		)
		r.recorder.StoreFailed(route.Measurement, took)
		return OutcomeStoreFailed
	}

	r.recorder.PointStored(route.Measurement, time.Since(start))
	return OutcomeStored
}

// store calls the sink, converting a panic into an error.
func (r *Router) store(ctx context.Context, route Route, fields Fields) (err error) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink panic: %v", p)
		}
	}()

	return r.sink.Store(storeCtx, route.SensorID, route.Measurement, map[string]string{}, fields)
}

func decodeFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFieldType):
		return "invalid_field_type"
	case errors.Is(err, ErrUnparseable):
		return "unparseable"
	default:
		return "unknown"
	}
}

// noopRecorder is used when no Recorder is configured.
type noopRecorder struct{}

func (noopRecorder) MessageReceived() {}

func (noopRecorder) MessageUnrouted() {}

func (noopRecorder) DecodeFailed(string) {}

func (noopRecorder) PointStored(string, time.Duration) {}

func (noopRecorder) StoreFailed(string, time.Duration) {}
