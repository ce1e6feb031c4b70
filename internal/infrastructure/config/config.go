package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for mqtt2influx.
// Values come from defaults, an optional YAML file, environment variables
// and finally command-line flags (applied by the caller).
type Config struct {
	MQTT        MQTTConfig     `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig `yaml:"influxdb"`
	Router      RouterConfig   `yaml:"router"`
	Logging     LoggingConfig  `yaml:"logging"`
	Status      StatusConfig   `yaml:"status"`
	SensorsFile string         `yaml:"sensors_file"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StatusTopic receives retained online/offline messages and the LWT.
	// Empty disables status publishing.
	StatusTopic string `yaml:"status_topic"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
//
// With Token empty the client talks to the 1.x compatibility API using
// Username/Password and Database[/RetentionPolicy]. With Token set it
// writes to Org/Bucket on an InfluxDB 2.x server.
type InfluxDBConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	TLS             bool   `yaml:"tls"`
	Database        string `yaml:"database"`
	RetentionPolicy string `yaml:"retention_policy"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Token           string `yaml:"token"`
	Org             string `yaml:"org"`
	Bucket          string `yaml:"bucket"`
	WriteTimeout    int    `yaml:"write_timeout"`
}

// RouterConfig contains ingestion router settings.
type RouterConfig struct {
	StoreTimeout int `yaml:"store_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// StatusConfig contains the status HTTP server settings.
// Port 0 disables the server.
type StatusConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Validation is left to the caller because command-line flags are applied
// after Load and may supply required values.
//
// Environment variables follow the pattern: MQTT2INFLUX_SECTION_KEY
// For example: MQTT2INFLUX_MQTT_HOST, MQTT2INFLUX_INFLUXDB_PASSWORD
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	ApplyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// Broker host, InfluxDB host and database have no default.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			StatusTopic: "mqtt2influx/status",
		},
		InfluxDB: InfluxDBConfig{
			Port:         8086,
			WriteTimeout: 5,
		},
		Router: RouterConfig{
			StoreTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Status: StatusConfig{
			Host: "0.0.0.0",
		},
	}
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
func ApplyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MQTT2INFLUX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTT2INFLUX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT2INFLUX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MQTT2INFLUX_INFLUXDB_HOST"); v != "" {
		cfg.InfluxDB.Host = v
	}
	if v := os.Getenv("MQTT2INFLUX_INFLUXDB_USERNAME"); v != "" {
		cfg.InfluxDB.Username = v
	}
	if v := os.Getenv("MQTT2INFLUX_INFLUXDB_PASSWORD"); v != "" {
		cfg.InfluxDB.Password = v
	}
	if v := os.Getenv("MQTT2INFLUX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("MQTT2INFLUX_SENSORS"); v != "" {
		cfg.SensorsFile = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported in a single error so an operator
// can fix a broken deployment in one pass.
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (--mqtt-host)")
	}
	if !validPort(c.MQTT.Broker.Port) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Host == "" {
		errs = append(errs, "influxdb.host is required (--influx-host)")
	}
	if !validPort(c.InfluxDB.Port) {
		errs = append(errs, "influxdb.port must be between 1 and 65535")
	}
	if c.InfluxDB.Token != "" {
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb.token is set")
		}
	} else if c.InfluxDB.Database == "" {
		errs = append(errs, "influxdb.database is required (--influx-db)")
	}
	if c.InfluxDB.WriteTimeout < 0 {
		errs = append(errs, "influxdb.write_timeout must not be negative")
	}

	if c.Router.StoreTimeout < 0 {
		errs = append(errs, "router.store_timeout must not be negative")
	}

	// Status server: 0 disables
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		errs = append(errs, "status.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetStoreTimeout returns the per-point store timeout as a Duration.
func (c *Config) GetStoreTimeout() time.Duration {
	return time.Duration(c.Router.StoreTimeout) * time.Second
}

// URL returns the InfluxDB base URL built from host, port and TLS.
func (c InfluxDBConfig) URL() string {
	scheme := "http"
	if c.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// GetWriteTimeout returns the InfluxDB write timeout as a Duration.
func (c InfluxDBConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}
