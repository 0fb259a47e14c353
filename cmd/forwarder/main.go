// MQTT status forwarder
//
// Subscribes to device status topics (status/AMT<14 digits>) on one broker,
// wraps each payload in a normalised envelope and republishes it to a single
// topic, possibly on a second broker.
//
// Usage:
//
//	forwarder -config /etc/forwarder/config.json
//
// The config path falls back to $FORWARDER_CONFIG, then ./config.json.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/parkline/mqtt-forwarder/internal/infrastructure/config"
	"github.com/parkline/mqtt-forwarder/internal/infrastructure/influxdb"
	"github.com/parkline/mqtt-forwarder/internal/infrastructure/logging"
	"github.com/parkline/mqtt-forwarder/internal/infrastructure/mqtt"
	"github.com/parkline/mqtt-forwarder/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "config.json"

func main() {
	configFlag := flag.String("config", "", "path to the JSON or YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mqtt-forwarder %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path of the config file to load
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mqtt forwarder",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("configuration loaded",
		"path", configPath,
		"devices", len(cfg.Devices),
		"level", cfg.Logging.Level,
		"log_file", cfg.Logging.File.Path,
	)

	// Outbound connection first so nothing is received before it can be forwarded.
	forwardClient, err := connectMQTT("forward", cfg.Forward.BrokerConfig, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("disconnecting from forward broker")
		if closeErr := forwardClient.Close(); closeErr != nil {
			log.Error("error closing forward MQTT", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
	var metrics relay.MetricsRecorder
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	forwarder, err := relay.NewForwarder(relay.ForwarderConfig{
		Topic:     cfg.Forward.Topic,
		QoS:       byte(cfg.Forward.QoS), //nolint:gosec // validated 0-2
		Retained:  cfg.Forward.Retained,
		Publisher: forwardClient,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating forwarder: %w", err)
	}

	inboundClient, err := connectMQTT("inbound", cfg.MQTT.BrokerConfig, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("disconnecting from inbound broker")
		if closeErr := inboundClient.Close(); closeErr != nil {
			log.Error("error closing inbound MQTT", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, inboundClient, forwardClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	stats := &relay.Stats{}
	listener, err := relay.NewListener(relay.ListenerConfig{
		Devices:      cfg.Devices,
		QoS:          byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		Wildcard:     cfg.MQTT.Wildcard,
		DrainTimeout: cfg.GetDrainTimeout(),
		Subscriber:   &mqttSubscriberAdapter{client: inboundClient},
		Transformer:  relay.NewTransformer(relay.WithWrapScalars(cfg.Forward.WrapScalars)),
		Forwarder:    forwarder,
		Stats:        stats,
		Metrics:      metrics,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}

	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("subscribing to device topics: %w", err)
	}
	log.Info("forwarding",
		"from", cfg.MQTT.Address(),
		"to", cfg.Forward.Address(),
		"topic", cfg.Forward.Topic,
		"subscriptions", len(listener.Topics()),
	)

	var health *relay.HealthReporter
	if cfg.Forward.StatusTopic != "" && cfg.Relay.HealthInterval > 0 {
		health = relay.NewHealthReporter(relay.HealthReporterConfig{
			Topic:     cfg.Forward.StatusTopic + relay.HealthTopicSuffix,
			ClientID:  forwardClient.ClientID(),
			Version:   version,
			Interval:  cfg.GetHealthInterval(),
			Publisher: forwardClient,
			Inbound:   inboundClient,
			Stats:     stats,
			Devices:   listener.DeviceCount(),
		})
		health.SetLogger(log)
		health.Start(ctx)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, draining")

	if stopErr := listener.Stop(); stopErr != nil {
		log.Warn("drain incomplete", "error", stopErr)
	}
	if health != nil {
		health.Stop()
	}

	snap := stats.Snapshot()
	log.Info("mqtt forwarder stopped",
		"received", snap.Received,
		"forwarded", snap.Forwarded,
		"skipped", snap.Skipped,
		"dropped", snap.Dropped,
		"failed", snap.Failed,
	)

	// Deferred Close() calls run in reverse order:
	// inbound MQTT, InfluxDB (if enabled), forward MQTT, log file.
	return nil
}

// connectMQTT connects one of the two broker connections and wires its
// connection-state logging.
func connectMQTT(name string, cfg config.BrokerConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s MQTT: %w", name, err)
	}
	client.SetLogger(log)

	connLog := log.With("connection", name)
	client.SetOnConnect(func() {
		connLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		connLog.Warn("MQTT disconnected", "error", err)
	})

	connLog.Info("MQTT connected",
		"broker", cfg.Address(),
		"client_id", cfg.ClientID,
		"tls", cfg.TLS,
	)
	return client, nil
}

// getConfigPath returns the configuration file path: the -config flag if
// given, else FORWARDER_CONFIG, else the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("FORWARDER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - inbound: MQTT client receiving status messages
//   - forward: MQTT client publishing envelopes
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, inbound, forward *mqtt.Client, influxClient *influxdb.Client) error {
	if err := forward.HealthCheck(ctx); err != nil {
		return fmt.Errorf("forward mqtt: %w", err)
	}
	if err := inbound.HealthCheck(ctx); err != nil {
		return fmt.Errorf("inbound mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttSubscriberAdapter adapts the infrastructure MQTT client to the relay's
// Subscriber interface. The difference is the handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Relay expects: func(topic, payload []byte)
type mqttSubscriberAdapter struct {
	client *mqtt.Client
}

// Subscribe implements relay.Subscriber.
func (a *mqttSubscriberAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements relay.Subscriber.
func (a *mqttSubscriberAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}
