package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/mqtt2influx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2influx/internal/ingest"
)

var (
	// ErrNoSubscriptions is returned when no topic could be subscribed.
	ErrNoSubscriptions = errors.New("subscriber: no subscriptions")

	// ErrNotConnected is returned by HealthCheck while the broker
	// connection is down.
	ErrNotConnected = errors.New("subscriber: not connected")
)

// Transport is the broker connection a Session drives.
// *mqtt.Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	HasSubscription(topic string) bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	IsConnected() bool
	Close() error
}

// Dialer opens a Transport, blocking until connected or ctx is done.
type Dialer func(ctx context.Context) (Transport, error)

// Handler processes one delivered message.
// *ingest.Router satisfies it.
type Handler interface {
	HandleMessage(ctx context.Context, topic string, payload []byte) ingest.Outcome
}

// Logger is the logging surface used by Session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session connects to the broker, subscribes every route topic and feeds
// messages to the handler until its context is cancelled.
type Session struct {
	dial     Dialer
	handler  Handler
	topics   []string
	qos      byte
	logger   Logger
	observer StateObserver

	state atomic.Int32

	// inflight is read-locked while a message is handled; shutdown takes
	// the write lock so the last message completes before the transport
	// closes.
	inflight sync.RWMutex
	stopping bool

	// subMu serialises subscription passes from Run and the on-connect
	// callback.
	subMu     sync.Mutex
	onMessage mqtt.MessageHandler
	stopped   atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

// WithQoS sets the subscription QoS (default 1).
func WithQoS(qos byte) Option {
	return func(s *Session) { s.qos = qos }
}

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStateObserver registers an observer for state transitions.
func WithStateObserver(o StateObserver) Option {
	return func(s *Session) { s.observer = o }
}

// New creates a Session over the given topics.
//
// Duplicate topics are subscribed once.
func New(dial Dialer, handler Handler, topics []string, opts ...Option) (*Session, error) {
	if dial == nil {
		return nil, errors.New("subscriber: dialer is required")
	}
	if handler == nil {
		return nil, errors.New("subscriber: handler is required")
	}

	s := &Session{
		dial:    dial,
		handler: handler,
		topics:  dedupe(topics),
		qos:     1,
		logger:  slog.New(slog.DiscardHandler),
	}
	if len(s.topics) == 0 {
		return nil, fmt.Errorf("%w: no topics given", ErrNoSubscriptions)
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run connects, subscribes and dispatches messages until ctx is cancelled.
//
// Cancelling ctx while connecting or running is a clean shutdown and
// returns nil. Run returns an error only when the broker cannot be reached
// for a reason other than cancellation, or when the broker rejects every
// subscription on a live connection. A connection that drops before or
// during subscribing is not an error: subscriptions resume on reconnect.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateConnecting)
	s.logger.Info("connecting to broker")

	transport, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			s.logger.Info("shutdown requested while connecting")
			return nil
		}
		return fmt.Errorf("connecting to broker: %w", err)
	}

	s.onMessage = s.messageHandler(ctx)

	transport.SetOnConnect(func() {
		s.setState(StateConnected)
		if s.stopped.Load() {
			return
		}
		s.subscribeMissing(transport)
	})
	transport.SetOnDisconnect(func(err error) {
		s.setState(StateDisconnected)
		s.logger.Warn("broker connection lost, waiting for reconnect", "error", err)
	})

	// A drop between dial and callback registration would otherwise be missed.
	if transport.IsConnected() {
		s.setState(StateConnected)
		held, deferred := s.subscribeMissing(transport)
		if held == 0 && !deferred {
			s.shutdown(transport)
			return fmt.Errorf("%w: all %d topics failed", ErrNoSubscriptions, len(s.topics))
		}
	} else {
		s.setState(StateDisconnected)
		s.logger.Warn("broker connection down after dial, subscribing on reconnect")
	}

	<-ctx.Done()
	s.logger.Info("shutting down session")
	s.shutdown(transport)

	return nil
}

// subscribeMissing subscribes every topic the transport does not already
// hold, logging failures individually. It runs on start and on every fresh
// connection, so a topic that failed earlier is retried.
//
// Returns the number of topics held afterwards and whether the pass was cut
// short because the connection went down. A cut-short pass is finished by
// the next on-connect callback.
func (s *Session) subscribeMissing(transport Transport) (held int, deferred bool) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, topic := range s.topics {
		if transport.HasSubscription(topic) {
			held++
			continue
		}
		err := transport.Subscribe(topic, s.qos, s.onMessage)
		if errors.Is(err, mqtt.ErrNotConnected) {
			s.logger.Warn("broker connection lost while subscribing, retrying on reconnect", "topic", topic)
			return held, true
		}
		if err != nil {
			s.logger.Error("subscribe failed", "topic", topic, "error", err)
			continue
		}
		held++
		s.logger.Info("subscribed", "topic", topic, "qos", s.qos)
	}
	return held, false
}

// messageHandler adapts the Handler to the transport callback.
func (s *Session) messageHandler(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		s.inflight.RLock()
		defer s.inflight.RUnlock()

		if s.stopping {
			s.logger.Debug("message ignored during shutdown", "topic", topic)
			return nil
		}

		outcome := s.handler.HandleMessage(ctx, topic, payload)
		s.logger.Debug("message handled", "topic", topic, "outcome", outcome.String())
		return nil
	}
}

// shutdown waits for the in-flight message, then closes the transport.
func (s *Session) shutdown(transport Transport) {
	s.stopped.Store(true)
	s.inflight.Lock()
	s.stopping = true
	s.inflight.Unlock()

	if err := transport.Close(); err != nil {
		s.logger.Warn("closing broker connection", "error", err)
	}
	s.setState(StateDisconnected)
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// HealthCheck reports whether the broker connection is up.
func (s *Session) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state := s.State(); state != StateConnected {
		return fmt.Errorf("%w: %s", ErrNotConnected, state)
	}
	return nil
}

// Topics returns the distinct topics the session subscribes.
func (s *Session) Topics() []string {
	return append([]string(nil), s.topics...)
}

func (s *Session) setState(state State) {
	prev := State(s.state.Swap(int32(state)))
	if prev == state {
		return
	}
	s.logger.Debug("session state changed", "from", prev.String(), "to", state.String())
	if s.observer != nil {
		s.observer.SessionState(state)
	}
}

// dedupe drops repeated topics, keeping first-seen order.
func dedupe(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
