package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/mqtt2influx/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingTimeout  = 5 * time.Second
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client wraps the InfluxDB v2 client with a synchronous point writer.
//
// It speaks either the 1.x compatibility API (database/retention policy,
// username/password) or the native 2.x API (org/bucket, token), chosen by
// whether a token is configured.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Store blocks until the server has acknowledged the point.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	url      string
	org      string
	bucket   string

	logger Logger
	now    func() time.Time

	// closed is set by Close; Store then fails with ErrNotConnected.
	closed bool
	mu     sync.RWMutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used to report unavailable-server failures.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the configured server.
//
// No connection is made; InfluxDB being down at startup is not fatal.
// Use HealthCheck to probe the server.
//
// Returns:
//   - *Client: Client ready for Store calls
//   - error: ErrInvalidConfig if host, database or bucket is missing
func New(cfg config.InfluxDBConfig, opts ...Option) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}

	token, org, bucket := credentials(cfg)
	if bucket == "" {
		return nil, fmt.Errorf("%w: database or bucket is required", ErrInvalidConfig)
	}

	timeout := cfg.GetWriteTimeout()
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	url := cfg.URL()
	// #nosec G115 -- timeout validated above to be positive
	client := influxdb2.NewClientWithOptions(
		url,
		token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(timeout/time.Second)).
			SetPrecision(time.Nanosecond),
	)

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		url:      url,
		org:      org,
		bucket:   bucket,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// credentials maps the configuration onto token, org and bucket.
//
// In 1.x compatibility mode the token is "username:password", the org is
// ignored and the bucket is "database" or "database/retention_policy".
func credentials(cfg config.InfluxDBConfig) (token, org, bucket string) {
	if cfg.Token != "" {
		return cfg.Token, cfg.Org, cfg.Bucket
	}

	if cfg.Username != "" {
		token = cfg.Username + ":" + cfg.Password
	}
	bucket = cfg.Database
	if bucket != "" && cfg.RetentionPolicy != "" {
		bucket += "/" + cfg.RetentionPolicy
	}
	return token, "", bucket
}

// Close releases the underlying HTTP client.
//
// Returns:
//   - error: nil (InfluxDB client Close doesn't return errors)
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.client.Close()

	return nil
}

// HealthCheck pings the InfluxDB server.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected reports whether the client is still open.
//
// Note: This does not probe the server. Use HealthCheck for that.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.url
}

// Bucket returns the write target ("database[/rp]" or the 2.x bucket).
func (c *Client) Bucket() string {
	return c.bucket
}
