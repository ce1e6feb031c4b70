package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqtt2influx/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "mqtt2influx-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		StatusTopic: "mqtt2influx/status",
	}
}

// mockLogger records log calls for assertions.
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *mockLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) counts() (infos, warns, errs int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.infos), len(l.warns), len(l.errors)
}

// offlineClient returns a Client that never touched a broker.
func offlineClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

// =============================================================================
// Topic Filter Tests
// =============================================================================

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{filter: "sensors/temp1"},
		{filter: "sensors/+/temperature"},
		{filter: "sensors/#"},
		{filter: "#"},
		{filter: "+"},
		{filter: "+/+"},
		{filter: "/leading/slash"},
		{filter: "", wantErr: true},
		{filter: "sensors/#/temp", wantErr: true},
		{filter: "sensors#", wantErr: true},
		{filter: "sensors/temp+", wantErr: true},
		{filter: "sen+sors/x", wantErr: true},
		{filter: "bad\x00topic", wantErr: true},
		{filter: "bad\xfftopic", wantErr: true},
		{filter: strings.Repeat("a", maxTopicLength+1), wantErr: true},
	}

	for _, tt := range tests {
		name := tt.filter
		if len(name) > 32 {
			name = name[:32]
		}
		t.Run(name, func(t *testing.T) {
			err := ValidateTopicFilter(tt.filter)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("ValidateTopicFilter(%q) error = %v, want ErrInvalidTopic", tt.filter, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateTopicFilter(%q) error = %v, want nil", tt.filter, err)
			}
		})
	}
}

func TestNewClientID(t *testing.T) {
	a, b := NewClientID(), NewClientID()

	if !strings.HasPrefix(a, clientIDPrefix) {
		t.Errorf("NewClientID() = %q, want prefix %q", a, clientIDPrefix)
	}
	if len(a) != len(clientIDPrefix)+clientIDRandLen {
		t.Errorf("len(NewClientID()) = %d, want %d", len(a), len(clientIDPrefix)+clientIDRandLen)
	}
	if a == b {
		t.Errorf("NewClientID() returned %q twice", a)
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q, want tcp://127.0.0.1:1883", got)
	}

	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL() with TLS = %q, want ssl://127.0.0.1:8883", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "ingest"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "mqtt2influx-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "ingest" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want ingest/secret", opts.Username, opts.Password)
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if !opts.Order {
		t.Error("Order = false, want in-order delivery")
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("AutoReconnect and ConnectRetry must be enabled")
	}
	if opts.ConnectRetryInterval != time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 1s", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS must not be configured for plain tcp")
	}
}

func TestBuildClientOptions_Defaults(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect = config.MQTTReconnectConfig{}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if opts.ConnectRetryInterval != defaultRetryInterval {
		t.Errorf("ConnectRetryInterval = %v, want %v", opts.ConnectRetryInterval, defaultRetryInterval)
	}
	if opts.MaxReconnectInterval != defaultMaxReconnectIn {
		t.Errorf("MaxReconnectInterval = %v, want %v", opts.MaxReconnectInterval, defaultMaxReconnectIn)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config with minimum version expected when TLS is enabled")
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty for anonymous access", opts.Username)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "mqtt2influx/status", "mqtt2influx-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "mqtt2influx/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want retained qos 1", opts.WillRetained, opts.WillQos)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if p.Status != statusOffline || p.Reason != reasonCrash || p.ClientID != "mqtt2influx-test" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestBuildStatusPayload_OmitsEmptyReason(t *testing.T) {
	data := buildStatusPayload("id-1", statusOnline, "")

	if strings.Contains(string(data), "reason") {
		t.Errorf("online payload %s should not carry a reason", data)
	}

	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", p.Timestamp, err)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_ContextExpires(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1 // Nothing listens here

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want it to wrap context.DeadlineExceeded", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}

	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client = %v, want nil", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	client := offlineClient()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() with cancelled ctx error = %v, want context.Canceled", err)
	}
}

func TestConnectionCallbacks(t *testing.T) {
	client := offlineClient()
	client.cfg.StatusTopic = ""
	logger := &mockLogger{}
	client.SetLogger(logger)

	var connects, disconnects int
	var lastErr error
	client.SetOnConnect(func() { connects++ })
	client.SetOnDisconnect(func(err error) {
		disconnects++
		lastErr = err
	})

	client.handleConnect()
	if connects != 1 {
		t.Errorf("onConnect called %d times, want 1", connects)
	}
	client.connMu.RLock()
	connected := client.connected
	client.connMu.RUnlock()
	if !connected {
		t.Error("connected flag not set by handleConnect")
	}

	lost := errors.New("EOF")
	client.handleDisconnect(lost)
	if disconnects != 1 || !errors.Is(lastErr, lost) {
		t.Errorf("onDisconnect calls = %d err = %v, want 1 call with %v", disconnects, lastErr, lost)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}

	infos, warns, _ := logger.counts()
	if infos != 1 || warns != 1 {
		t.Errorf("logged %d infos, %d warns; want 1 connect info and 1 lost warning", infos, warns)
	}
}

// =============================================================================
// Subscribe / Publish Validation Tests
// =============================================================================

func TestSubscribe_Validation(t *testing.T) {
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{name: "empty topic", topic: "", qos: 1, handler: handler, want: ErrInvalidTopic},
		{name: "bad wildcard", topic: "a/#/b", qos: 1, handler: handler, want: ErrInvalidTopic},
		{name: "invalid qos", topic: "a/b", qos: 3, handler: handler, want: ErrInvalidQoS},
		{name: "nil handler", topic: "a/b", qos: 1, handler: nil, want: ErrSubscribeFailed},
		{name: "disconnected", topic: "a/b", qos: 1, handler: handler, want: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := offlineClient()
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
			if client.SubscriptionCount() != 0 {
				t.Error("rejected subscription must not be tracked")
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{name: "empty topic", topic: "", qos: 1, want: ErrInvalidTopic},
		{name: "invalid qos", topic: "a", qos: 3, want: ErrInvalidQoS},
		{name: "too large", topic: "a", qos: 1, payload: make([]byte, maxPayloadSize+1), want: ErrPublishFailed},
		{name: "disconnected", topic: "a", qos: 1, payload: []byte("x"), want: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := offlineClient().Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

func TestDispatch_PanicRecovered(t *testing.T) {
	client := offlineClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error {
		panic("boom")
	}, "sensors/temp1", []byte("1"))

	if _, _, errs := logger.counts(); errs != 1 {
		t.Errorf("logged %d errors, want 1 for recovered panic", errs)
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	client := offlineClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error {
		return fmt.Errorf("handler failed")
	}, "sensors/temp1", []byte("1"))

	if _, warns, _ := logger.counts(); warns != 1 {
		t.Errorf("logged %d warnings, want 1 for handler error", warns)
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	client := offlineClient()

	// Must not panic without a logger.
	client.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	client.dispatch(func(string, []byte) error { return errors.New("x") }, "t", nil)
}
