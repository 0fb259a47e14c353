package relay

import (
	"fmt"
)

// Publisher is the outbound side of the relay.
// This is typically implemented by an MQTT client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// ForwarderConfig holds configuration for a Forwarder.
type ForwarderConfig struct {
	// Topic is the fixed outbound topic.
	Topic string

	// QoS for outbound publishes. Default: 0.
	QoS byte

	// Retained sets the MQTT retain flag on outbound publishes.
	Retained bool

	// Publisher is the outbound connection. The Forwarder owns it.
	Publisher Publisher

	// Logger (optional).
	Logger Logger
}

// Forwarder serialises envelopes and publishes them to the forward topic.
type Forwarder struct {
	topic     string
	qos       byte
	retained  bool
	publisher Publisher
	logger    Logger
}

// NewForwarder creates a Forwarder.
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: forward topic is required", ErrInvalidConfig)
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("%w: publisher is required", ErrInvalidConfig)
	}
	return &Forwarder{
		topic:     cfg.Topic,
		qos:       cfg.QoS,
		retained:  cfg.Retained,
		publisher: cfg.Publisher,
		logger:    loggerOrNop(cfg.Logger),
	}, nil
}

// Topic returns the outbound topic.
func (f *Forwarder) Topic() string {
	return f.topic
}

// Forward publishes one envelope. Failures are logged and returned; the
// envelope is not retried.
func (f *Forwarder) Forward(env *Envelope) error {
	if !f.publisher.IsConnected() {
		f.logger.Error("forward client not connected, dropping message",
			"device_id", env.DeviceID(),
			"topic", f.topic,
		)
		return ErrNotConnected
	}

	payload, err := env.Marshal()
	if err != nil {
		f.logger.Error("encoding envelope failed", "device_id", env.DeviceID(), "error", err)
		return err
	}

	if err := f.publisher.Publish(f.topic, payload, f.qos, f.retained); err != nil {
		f.logger.Error("forward failed",
			"device_id", env.DeviceID(),
			"topic", f.topic,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	f.logger.Info("forwarded",
		"device_id", env.DeviceID(),
		"topic", f.topic,
		"bytes", len(payload),
	)
	return nil
}
