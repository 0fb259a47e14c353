package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/parkline/mqtt-forwarder/internal/amt"
)

// utf8BOM is stripped from files saved by Windows editors.
var utf8BOM = []byte("\xef\xbb\xbf")

// Config is the root configuration structure for the forwarder.
// It is loaded from a JSON or YAML file and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `json:"mqtt" yaml:"mqtt"`
	Devices  []string       `json:"devices" yaml:"devices"`
	Forward  ForwardConfig  `json:"forward" yaml:"forward"`
	Relay    RelayConfig    `json:"relay" yaml:"relay"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	InfluxDB InfluxDBConfig `json:"influxdb" yaml:"influxdb"`
}

// BrokerConfig contains the connection settings shared by the inbound and
// outbound MQTT connections.
type BrokerConfig struct {
	Broker    string          `json:"broker" yaml:"broker"`
	Port      int             `json:"port" yaml:"port"`
	Username  string          `json:"username" yaml:"username"`
	Password  string          `json:"password" yaml:"password"`
	KeepAlive int             `json:"keepalive" yaml:"keepalive"`
	ClientID  string          `json:"client_id" yaml:"client_id"`
	TLS       bool            `json:"tls" yaml:"tls"`
	QoS       int             `json:"qos" yaml:"qos"`
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`

	// StatusTopic receives online/offline status and the LWT.
	// Empty disables status publishing for this connection.
	StatusTopic string `json:"status_topic" yaml:"status_topic"`
}

// Address returns the broker as host:port.
func (b BrokerConfig) Address() string {
	return fmt.Sprintf("%s:%d", b.Broker, b.Port)
}

// ReconnectConfig contains MQTT reconnection settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     int `json:"max_delay" yaml:"max_delay"`
}

// MQTTConfig describes the inbound broker the device status topics are read from.
type MQTTConfig struct {
	BrokerConfig `yaml:",inline"`

	// Wildcard subscribes to status/+ and filters by the configured devices
	// instead of subscribing once per device.
	Wildcard bool `json:"wildcard" yaml:"wildcard"`
}

// ForwardConfig describes the outbound broker and the single topic envelopes go to.
type ForwardConfig struct {
	BrokerConfig `yaml:",inline"`

	Topic    string `json:"topic" yaml:"topic"`
	Retained bool   `json:"retained" yaml:"retained"`

	// WrapScalars wraps non-array data into a one-element array so the
	// "data" field has the array shape the legacy forwarder produced.
	// Only the shape matches: the legacy forwarder also dropped every falsy
	// payload ([], 0, false, "", null), while these are forwarded here.
	WrapScalars bool `json:"wrap_scalars" yaml:"wrap_scalars"`
}

// RelayConfig contains pipeline settings.
type RelayConfig struct {
	// DrainTimeout bounds how long shutdown waits for in-flight messages (seconds).
	DrainTimeout int `json:"drain_timeout" yaml:"drain_timeout"`

	// HealthInterval is how often health is published to forward.status_topic (seconds).
	HealthInterval int `json:"health_interval" yaml:"health_interval"`
}

// InfluxDBConfig contains InfluxDB connection settings for forward metrics.
type InfluxDBConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url" yaml:"url"`
	Token         string `json:"token" yaml:"token"`
	Org           string `json:"org" yaml:"org"`
	Bucket        string `json:"bucket" yaml:"bucket"`
	BatchSize     int    `json:"batch_size" yaml:"batch_size"`
	FlushInterval int    `json:"flush_interval" yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `json:"level" yaml:"level"`
	Format string            `json:"format" yaml:"format"`
	Output string            `json:"output" yaml:"output"`
	File   FileLoggingConfig `json:"file" yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// An empty Path disables the file sink.
type FileLoggingConfig struct {
	Path       string `json:"path" yaml:"path"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// Load reads configuration from a file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (JSON or YAML, override defaults)
//  3. Environment variables (override file values)
//  4. Derived values (forward settings inherited from mqtt, generated client ids)
//
// Environment variables follow the pattern: FORWARDER_SECTION_KEY
// For example: FORWARDER_MQTT_PASSWORD, FORWARDER_FORWARD_TOPIC
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw file contents.
// A document starting with '{' is decoded as JSON; anything else as YAML.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	data = bytes.TrimPrefix(data, utf8BOM)

	if isJSON(data) {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// isJSON reports whether data looks like a JSON object.
// JSON files are often tab-indented, which YAML rejects.
func isJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			BrokerConfig: BrokerConfig{
				Port:      1883,
				KeepAlive: 60,
				Reconnect: ReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
		},
		Relay: RelayConfig{
			DrainTimeout:   5,
			HealthInterval: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "mqtt_forwarder.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FORWARDER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Inbound MQTT
	if v := os.Getenv("FORWARDER_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("FORWARDER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("FORWARDER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// Forward
	if v := os.Getenv("FORWARDER_FORWARD_BROKER"); v != "" {
		cfg.Forward.Broker = v
	}
	if v := os.Getenv("FORWARDER_FORWARD_TOPIC"); v != "" {
		cfg.Forward.Topic = v
	}
	if v := os.Getenv("FORWARDER_FORWARD_USERNAME"); v != "" {
		cfg.Forward.Username = v
	}
	if v := os.Getenv("FORWARDER_FORWARD_PASSWORD"); v != "" {
		cfg.Forward.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FORWARDER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("FORWARDER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDerived fills forward settings left unset from the inbound connection
// and generates client ids.
func (c *Config) applyDerived() {
	f := &c.Forward
	if f.Port == 0 {
		f.Port = c.MQTT.Port
	}
	if f.KeepAlive == 0 {
		f.KeepAlive = c.MQTT.KeepAlive
	}
	if f.Reconnect == (ReconnectConfig{}) {
		f.Reconnect = c.MQTT.Reconnect
	}

	// Same broker, no explicit credentials: reuse the inbound account.
	if f.Username == "" && f.Address() == c.MQTT.Address() {
		f.Username = c.MQTT.Username
		f.Password = c.MQTT.Password
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = generateClientID("in")
	}
	if f.ClientID == "" {
		f.ClientID = generateClientID("out")
	}
}

// generateClientID returns a broker-unique client id.
// Brokers disconnect an existing session when a second client reuses its id,
// so the two connections never share one.
func generateClientID(direction string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("mqtt_forwarder-%s-%s", direction, suffix)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, validateBroker("mqtt", c.MQTT.BrokerConfig)...)
	errs = append(errs, validateBroker("forward", c.Forward.BrokerConfig)...)

	// Devices
	if len(c.Devices) == 0 {
		errs = append(errs, "devices must list at least one device id")
	}
	seen := make(map[string]bool, len(c.Devices))
	for _, id := range c.Devices {
		if !amt.IsDeviceID(id) {
			errs = append(errs, fmt.Sprintf("device id %q must be %d ASCII digits", id, amt.IDLength))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Sprintf("device id %q is listed more than once", id))
		}
		seen[id] = true
	}

	// Forward topic
	if c.Forward.Topic == "" {
		errs = append(errs, "forward.topic is required")
	} else if strings.ContainsAny(c.Forward.Topic, "+#") {
		errs = append(errs, "forward.topic must not contain wildcards")
	}

	// Relay
	if c.Relay.DrainTimeout < 0 {
		errs = append(errs, "relay.drain_timeout must not be negative")
	}
	if c.Relay.HealthInterval < 0 {
		errs = append(errs, "relay.health_interval must not be negative")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateBroker checks one connection block.
func validateBroker(section string, b BrokerConfig) []string {
	var errs []string
	if b.Broker == "" {
		errs = append(errs, section+".broker is required")
	}
	if b.Port < 1 || b.Port > 65535 {
		errs = append(errs, section+".port must be between 1 and 65535")
	}
	if b.QoS < 0 || b.QoS > 2 {
		errs = append(errs, section+".qos must be 0, 1, or 2")
	}
	if b.KeepAlive < 0 {
		errs = append(errs, section+".keepalive must not be negative")
	}
	if strings.ContainsAny(b.StatusTopic, "+#") {
		errs = append(errs, section+".status_topic must not contain wildcards")
	}
	return errs
}

// GetDrainTimeout returns the shutdown drain timeout as a Duration.
func (c *Config) GetDrainTimeout() time.Duration {
	return time.Duration(c.Relay.DrainTimeout) * time.Second
}

// GetHealthInterval returns the health publish interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Relay.HealthInterval) * time.Second
}
