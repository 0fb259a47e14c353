package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parkline/mqtt-forwarder/internal/amt"
)

// defaultDrainTimeout bounds Stop when ListenerConfig.DrainTimeout is zero.
const defaultDrainTimeout = 5 * time.Second

// Subscriber is the inbound side of the relay.
// This is typically implemented by an MQTT client.
type Subscriber interface {
	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error
}

// MetricsRecorder receives one call per handled message.
// This is typically implemented by the InfluxDB client.
type MetricsRecorder interface {
	WriteForwardOutcome(deviceID, outcome string)
}

// ListenerConfig holds configuration for a Listener.
type ListenerConfig struct {
	// Devices are the 14-digit device ids to accept.
	Devices []string

	// QoS for inbound subscriptions.
	QoS byte

	// Wildcard subscribes once to status/+ instead of once per device.
	Wildcard bool

	// DrainTimeout bounds how long Stop waits for in-flight messages.
	// Default: 5 seconds.
	DrainTimeout time.Duration

	// Subscriber is the inbound connection. The Listener owns it.
	Subscriber Subscriber

	// Transformer builds envelopes. Default: NewTransformer().
	Transformer *Transformer

	// Forwarder publishes envelopes.
	Forwarder *Forwarder

	// Stats receives outcome counts (optional).
	Stats *Stats

	// Metrics receives outcome points (optional).
	Metrics MetricsRecorder

	// Logger (optional).
	Logger Logger
}

// Listener receives device status messages and hands them through the
// Transformer to the Forwarder.
//
// Thread Safety:
//   - HandleMessage may be called concurrently; each call is independent.
//   - Start and Stop must not race each other.
type Listener struct {
	devices      map[string]struct{}
	topics       []string
	qos          byte
	drainTimeout time.Duration

	subscriber  Subscriber
	transformer *Transformer
	forwarder   *Forwarder
	stats       *Stats
	metrics     MetricsRecorder
	logger      Logger

	// accepting gates new deliveries; inflight tracks ones already admitted.
	accepting bool
	mu        sync.RWMutex
	inflight  sync.WaitGroup

	subscribed []string
	stopOnce   sync.Once
	stopErr    error
}

// NewListener creates a Listener. Call Start to subscribe.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Subscriber == nil {
		return nil, fmt.Errorf("%w: subscriber is required", ErrInvalidConfig)
	}
	if cfg.Forwarder == nil {
		return nil, fmt.Errorf("%w: forwarder is required", ErrInvalidConfig)
	}
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("%w: at least one device is required", ErrInvalidConfig)
	}

	devices := make(map[string]struct{}, len(cfg.Devices))
	topics := make([]string, 0, len(cfg.Devices))
	for _, id := range cfg.Devices {
		if !amt.IsDeviceID(id) {
			return nil, fmt.Errorf("%w: device id %q must be 14 ASCII digits", ErrInvalidConfig, id)
		}
		if _, dup := devices[id]; dup {
			continue
		}
		devices[id] = struct{}{}
		topics = append(topics, DeviceTopic(id))
	}
	if cfg.Wildcard {
		topics = []string{WildcardTopic}
	}

	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}

	transformer := cfg.Transformer
	if transformer == nil {
		transformer = NewTransformer()
	}

	stats := cfg.Stats
	if stats == nil {
		stats = &Stats{}
	}

	return &Listener{
		devices:      devices,
		topics:       topics,
		qos:          cfg.QoS,
		drainTimeout: drain,
		subscriber:   cfg.Subscriber,
		transformer:  transformer,
		forwarder:    cfg.Forwarder,
		stats:        stats,
		metrics:      cfg.Metrics,
		logger:       loggerOrNop(cfg.Logger),
	}, nil
}

// Topics returns the topics the Listener subscribes to.
func (l *Listener) Topics() []string {
	return append([]string(nil), l.topics...)
}

// DeviceCount returns the number of configured devices.
func (l *Listener) DeviceCount() int {
	return len(l.devices)
}

// Stats returns the outcome counters.
func (l *Listener) Stats() *Stats {
	return l.stats
}

// Start subscribes to every device topic and begins accepting messages.
// If any subscription fails, the ones already made are removed.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	l.accepting = true
	l.mu.Unlock()

	for _, topic := range l.topics {
		if err := ctx.Err(); err != nil {
			l.abortStart()
			return err
		}
		if err := l.subscriber.Subscribe(topic, l.qos, l.HandleMessage); err != nil {
			l.abortStart()
			return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
		}
		l.subscribed = append(l.subscribed, topic)
		l.logger.Info("subscribed", "topic", topic, "qos", l.qos)
	}
	return nil
}

func (l *Listener) abortStart() {
	l.mu.Lock()
	l.accepting = false
	l.mu.Unlock()
	l.unsubscribeAll()
}

func (l *Listener) unsubscribeAll() {
	for _, topic := range l.subscribed {
		if err := l.subscriber.Unsubscribe(topic); err != nil {
			l.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
	l.subscribed = nil
}

// Stop rejects new deliveries, unsubscribes, and waits for in-flight
// messages up to the drain timeout. Safe to call multiple times.
func (l *Listener) Stop() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.accepting = false
		l.mu.Unlock()

		l.unsubscribeAll()

		done := make(chan struct{})
		go func() {
			l.inflight.Wait()
			close(done)
		}()

		timer := time.NewTimer(l.drainTimeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			l.stopErr = fmt.Errorf("%w: after %v", ErrDrainTimeout, l.drainTimeout)
		}
	})
	return l.stopErr
}

// HandleMessage processes one inbound message. It is the subscription
// callback and is exported for adapters and tests.
func (l *Listener) HandleMessage(topic string, payload []byte) {
	l.mu.RLock()
	if !l.accepting {
		l.mu.RUnlock()
		return
	}
	l.inflight.Add(1)
	l.mu.RUnlock()
	defer l.inflight.Done()

	l.stats.received.Add(1)

	deviceID, err := DeviceIDFromTopic(topic)
	if err != nil {
		l.logger.Warn("dropping message on unexpected topic", "topic", topic)
		l.record("", OutcomeDropped)
		return
	}
	if _, ok := l.devices[deviceID]; !ok {
		l.logger.Warn("dropping message from unconfigured device", "topic", topic, "device_id", deviceID)
		l.record(deviceID, OutcomeDropped)
		return
	}

	env, skip := l.transformer.Transform(payload, deviceID)
	if skip {
		l.logger.Debug("skipping empty message", "device_id", deviceID)
		l.record(deviceID, OutcomeSkipped)
		return
	}

	if err := l.forwarder.Forward(env); err != nil {
		l.record(deviceID, OutcomeFailed)
		return
	}
	l.record(deviceID, OutcomeForwarded)
}

func (l *Listener) record(deviceID, outcome string) {
	l.stats.record(outcome)
	if l.metrics != nil {
		l.metrics.WriteForwardOutcome(deviceID, outcome)
	}
}
