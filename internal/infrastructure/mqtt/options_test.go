package mqtt

import (
	"testing"
	"time"

	"github.com/parkline/mqtt-forwarder/internal/infrastructure/config"
)

func TestBuildClientOptions(t *testing.T) {
	cfg := config.BrokerConfig{
		Broker:    "broker.local",
		Port:      8883,
		Username:  "user",
		Password:  "secret",
		KeepAlive: 15,
		ClientID:  "fwd-in",
		TLS:       true,
		Reconnect: config.ReconnectConfig{InitialDelay: 2, MaxDelay: 30},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Errorf("Servers = %v, want ssl://broker.local:8883", opts.Servers)
	}
	if opts.ClientID != "fwd-in" {
		t.Errorf("ClientID = %q, want fwd-in", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want user/secret", opts.Username, opts.Password)
	}
	if opts.KeepAlive != 15 {
		t.Errorf("KeepAlive = %d, want 15", opts.KeepAlive)
	}
	if opts.ConnectRetryInterval != 2*time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 2s", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 30s", opts.MaxReconnectInterval)
	}
	if !opts.Order {
		t.Error("Order = false, want ordered delivery")
	}
	if opts.ProtocolVersion != mqttProtocolVersion {
		t.Errorf("ProtocolVersion = %d, want %d (no 3.1 fallback)", opts.ProtocolVersion, mqttProtocolVersion)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig not set with minimum version")
	}
}

func TestBuildClientOptions_Defaults(t *testing.T) {
	opts := buildClientOptions(config.BrokerConfig{Broker: "localhost", Port: 1883, ClientID: "x"})

	if opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers[0] = %v, want tcp://localhost:1883", opts.Servers[0])
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty", opts.Username)
	}
	if opts.KeepAlive != int64(defaultKeepAlive/time.Second) {
		t.Errorf("KeepAlive = %d, want %d", opts.KeepAlive, int64(defaultKeepAlive/time.Second))
	}
	if opts.ConnectRetryInterval != time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 1s", opts.ConnectRetryInterval)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(config.BrokerConfig{Broker: "localhost", Port: 1883, ClientID: "x"})
	configureLWT(opts, config.BrokerConfig{ClientID: "x"})
	if opts.WillEnabled {
		t.Error("WillEnabled = true without status topic")
	}

	configureLWT(opts, config.BrokerConfig{ClientID: "x", StatusTopic: "fwd/status"})
	if !opts.WillEnabled || opts.WillTopic != "fwd/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = enabled:%v topic:%q retained:%v qos:%d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}
}
