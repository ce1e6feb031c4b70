// mqtt2influx - MQTT to InfluxDB ingestion bridge
//
// mqtt2influx subscribes to the sensor topics listed in its sensors file,
// decodes each payload into numeric fields and writes one InfluxDB point
// per message, tagged with the sensor name.
//
// Usage:
//
//	mqtt2influx --mqtt-host broker.local --influx-host influx.local --influx-db sensors
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/mqtt2influx/internal/api"
	"github.com/nerrad567/mqtt2influx/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2influx/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt2influx/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2influx/internal/infrastructure/metrics"
	"github.com/nerrad567/mqtt2influx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2influx/internal/ingest"
	"github.com/nerrad567/mqtt2influx/internal/subscriber"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Environment variable naming the YAML config file.
const configEnv = "MQTT2INFLUX_CONFIG"

// defaultSensorsFile is looked up next to the executable.
const defaultSensorsFile = "config.json"

// errUsage marks command-line errors, which exit with status 2.
var errUsage = errors.New("usage error")

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// execute runs the application and maps the result to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := run(ctx, args, stdout, stderr)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	sensorsPath string
	mqttHost    string
	mqttPort    int
	influxHost  string
	influxPort  int
	influxDB    string
	statusPort  int
	verbose     bool
	showVersion bool

	// set records which flags were given explicitly.
	set map[string]bool
}

// parseFlags parses args into options.
//
// Returns:
//   - *options: Parsed options
//   - error: flag.ErrHelp for -h, errUsage-wrapped error otherwise
func parseFlags(args []string, output io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("mqtt2influx", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.configPath, "config", "", "path to YAML service configuration (env "+configEnv+")")
	fs.StringVar(&o.sensorsPath, "sensors", "", "path to JSON sensors file (default config.json next to the executable)")
	fs.StringVar(&o.mqttHost, "mqtt-host", "", "MQTT broker host (required)")
	fs.IntVar(&o.mqttPort, "mqtt-port", 1883, "MQTT broker port")
	fs.StringVar(&o.influxHost, "influx-host", "", "InfluxDB host (required)")
	fs.IntVar(&o.influxPort, "influx-port", 8086, "InfluxDB port")
	fs.StringVar(&o.influxDB, "influx-db", "", "InfluxDB database (required unless a token is configured)")
	fs.IntVar(&o.statusPort, "status-port", 0, "status HTTP server port (0 disables)")
	fs.BoolVar(&o.verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}

	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	return o, nil
}

// loadConfig builds the configuration from defaults, the optional YAML
// file and environment variables, then applies flags on top.
func loadConfig(o *options) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}

	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		config.ApplyEnvOverrides(cfg)
	}

	applyFlags(cfg, o)

	return cfg, nil
}

// applyFlags overrides cfg with every flag given on the command line.
func applyFlags(cfg *config.Config, o *options) {
	if o.set["mqtt-host"] {
		cfg.MQTT.Broker.Host = o.mqttHost
	}
	if o.set["mqtt-port"] {
		cfg.MQTT.Broker.Port = o.mqttPort
	}
	if o.set["influx-host"] {
		cfg.InfluxDB.Host = o.influxHost
	}
	if o.set["influx-port"] {
		cfg.InfluxDB.Port = o.influxPort
	}
	if o.set["influx-db"] {
		cfg.InfluxDB.Database = o.influxDB
	}
	if o.set["status-port"] {
		cfg.Status.Port = o.statusPort
	}
	if o.set["sensors"] {
		cfg.SensorsFile = o.sensorsPath
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
}

// sensorsPath returns the configured sensors file, falling back to
// config.json in the executable's directory.
func sensorsPath(cfg *config.Config) string {
	if cfg.SensorsFile != "" {
		return cfg.SensorsFile
	}
	exe, err := os.Executable()
	if err != nil {
		return defaultSensorsFile
	}
	return filepath.Join(filepath.Dir(exe), defaultSensorsFile)
}

// toRoutes converts sensors file entries into router routes.
func toRoutes(sensors []config.Sensor) []ingest.Route {
	routes := make([]ingest.Route, 0, len(sensors))
	for _, s := range sensors {
		routes = append(routes, ingest.Route{
			Topic:       s.Topic,
			SensorID:    s.Name,
			Measurement: s.Measurement,
		})
	}
	return routes
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for --version output
//   - stderr: Destination for flag usage output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "mqtt2influx %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting mqtt2influx",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load sensors
	path := sensorsPath(cfg)
	sensors, err := config.LoadSensors(path, mqtt.ValidateTopicFilter)
	if err != nil {
		return err
	}
	log.Info("sensors loaded", "path", path, "count", len(sensors))

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// InfluxDB sink
	influxClient, err := influxdb.New(cfg.InfluxDB, influxdb.WithLogger(log.With("component", "influxdb")))
	if err != nil {
		return fmt.Errorf("creating InfluxDB client: %w", err)
	}
	defer func() {
		log.Info("closing InfluxDB connection")
		if closeErr := influxClient.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}()
	if pingErr := influxClient.HealthCheck(ctx); pingErr != nil {
		log.Warn("InfluxDB not reachable at startup, points will be dropped until it is",
			"url", influxClient.URL(),
			"error", pingErr,
		)
	} else {
		log.Info("InfluxDB reachable", "url", influxClient.URL(), "bucket", influxClient.Bucket())
	}

	// Router
	router, err := ingest.NewRouter(toRoutes(sensors), influxClient,
		ingest.WithLogger(log.With("component", "router")),
		ingest.WithRecorder(pipelineMetrics),
		ingest.WithStoreTimeout(cfg.GetStoreTimeout()),
	)
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	// Broker session
	session, err := subscriber.New(
		mqttDialer(cfg.MQTT, log.With("component", "mqtt")),
		router,
		router.Topics(),
		// #nosec G115 -- QoS validated to 0..2
		subscriber.WithQoS(byte(cfg.MQTT.QoS)),
		subscriber.WithLogger(log.With("component", "subscriber")),
		subscriber.WithStateObserver(pipelineMetrics),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	// Status server (optional)
	if cfg.Status.Port != 0 {
		statusServer, srvErr := api.New(api.Deps{
			Config: cfg.Status,
			Logger: log.With("component", "api"),
			Checks: map[string]api.HealthChecker{
				"mqtt":     session,
				"influxdb": influxClient,
			},
			Routes:   router,
			Gatherer: registry,
			Version:  version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating status server: %w", srvErr)
		}
		if startErr := statusServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting status server: %w", startErr)
		}
		defer func() {
			if closeErr := statusServer.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	log.Info("mqtt2influx started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topics", len(router.Topics()),
	)

	if err := session.Run(ctx); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// mqttDialer returns a Dialer that connects an mqtt.Client.
func mqttDialer(cfg config.MQTTConfig, log *logging.Logger) subscriber.Dialer {
	return func(ctx context.Context) (subscriber.Transport, error) {
		client, err := mqtt.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
			"client_id", client.ClientID(),
		)
		return client, nil
	}
}
