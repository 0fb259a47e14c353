package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/parkline/mqtt-forwarder/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho's Disconnect expects.
	defaultDisconnectQuiesce = 1000

	// mqttProtocolVersion pins MQTT 3.1.1 so a CONNACK refusal is reported
	// as is instead of triggering paho's fallback to 3.1.
	mqttProtocolVersion = 4

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions maps a broker section onto paho options.
//
// Sessions are clean. paho retries the first connect and reconnects with
// exponential backoff from reconnect.initial_delay up to reconnect.max_delay.
// Ordered delivery keeps one topic's messages in arrival order. The protocol
// is pinned to MQTT 3.1.1.
func buildClientOptions(cfg config.BrokerConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetProtocolVersion(mqttProtocolVersion).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(secondsOr(cfg.Reconnect.InitialDelay, time.Second)).
		SetMaxReconnectInterval(secondsOr(cfg.Reconnect.MaxDelay, time.Minute)).
		SetOrderMatters(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(secondsOr(cfg.KeepAlive, defaultKeepAlive))

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// statusMessage is the retained payload on cfg.StatusTopic: "online" after
// connect, "offline"/"shutdown" on Close, "offline"/"unexpected_disconnect"
// as the broker-published will.
type statusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// configureLWT registers the will message when a status topic is set.
func configureLWT(opts *pahomqtt.ClientOptions, cfg config.BrokerConfig) {
	if cfg.StatusTopic == "" {
		return
	}
	opts.SetBinaryWill(cfg.StatusTopic, buildStatusPayload(cfg.ClientID, "offline", "unexpected_disconnect"), 1, true)
}

func buildStatusPayload(clientID, status, reason string) []byte {
	// Only strings are marshalled, so this cannot fail.
	payload, _ := json.Marshal(statusMessage{ //nolint:errcheck
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}
