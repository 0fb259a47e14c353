package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/parkline/mqtt-forwarder/internal/infrastructure/config"
)

// Client is one broker connection.
//
// The forwarder holds two: the inbound one subscribed to device status
// topics and the outbound one publishing envelopes. paho reconnects on its
// own; Client re-subscribes after every reconnect and keeps the retained
// online/offline status on cfg.StatusTopic current.
//
// All methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.BrokerConfig
	subs subscriptionSet

	// up mirrors paho's connection callbacks.
	up atomic.Bool

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures and reconnect notices.
// *logging.Logger and *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is called once per received message, in arrival order.
// A returned error is logged; the message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and blocks until the first CONNACK or
// defaultConnectTimeout. Network failures are retried within that window;
// a CONNACK refusal (bad credentials, rejected client id) fails at once with
// ErrConnectionRefused and the broker's reason. On failure paho's retry loop
// is stopped, so a failed Connect leaves nothing running.
func Connect(cfg config.BrokerConfig) (*Client, error) {
	c := &Client{cfg: cfg}
	dial := newDialWatch()

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.getLogger(); l != nil {
			l.Warn("MQTT reconnecting", "broker", cfg.Address(), "client_id", cfg.ClientID)
		}
	})
	opts.SetConnectionNotificationHandler(dial.notify)

	c.paho = pahomqtt.NewClient(opts)
	if err := dial.wait(c.paho.Connect(), defaultConnectTimeout); err != nil {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%s: %w", cfg.Address(), err)
	}

	// The OnConnect handler runs on its own goroutine and may lag behind
	// the token; report connected as soon as the token says so.
	c.up.Store(true)
	return c, nil
}

// dialWatch observes paho's connection attempts during Connect. paho keeps
// retrying the first dial on any failure, including a CONNACK refusal, so
// the reason would otherwise be lost behind a timeout.
type dialWatch struct {
	refused chan error
	last    atomic.Pointer[error]
}

func newDialWatch() *dialWatch {
	return &dialWatch{refused: make(chan error, 1)}
}

// notify is the paho ConnectionNotificationHandler. It also fires for
// reconnect attempts after Connect returned; those only update last.
func (d *dialWatch) notify(_ pahomqtt.Client, n pahomqtt.ConnectionNotification) {
	failed, ok := n.(pahomqtt.ConnectionNotificationFailed)
	if !ok || failed.Reason == nil {
		return
	}
	reason := failed.Reason
	d.last.Store(&reason)
	if isRefusal(reason) {
		select {
		case d.refused <- reason:
		default:
		}
	}
}

func (d *dialWatch) wait(token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			if isRefusal(err) {
				return fmt.Errorf("%w: %w: %w", ErrConnectionFailed, ErrConnectionRefused, err)
			}
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil
	case reason := <-d.refused:
		return fmt.Errorf("%w: %w: %w", ErrConnectionFailed, ErrConnectionRefused, reason)
	case <-timer.C:
		if last := d.last.Load(); last != nil {
			return fmt.Errorf("%w: no CONNACK within %v, last attempt: %w", ErrConnectionFailed, timeout, *last)
		}
		return fmt.Errorf("%w: no CONNACK within %v", ErrConnectionFailed, timeout)
	}
}

// connackRefusals are the CONNACK return codes paho surfaces as errors.
var connackRefusals = []error{
	packets.ErrorRefusedBadProtocolVersion,
	packets.ErrorRefusedIDRejected,
	packets.ErrorRefusedServerUnavailable,
	packets.ErrorRefusedBadUsernameOrPassword,
	packets.ErrorRefusedNotAuthorised,
}

// isRefusal reports whether err is a CONNACK refusal rather than a network
// failure.
func isRefusal(err error) bool {
	for _, refusal := range connackRefusals {
		if errors.Is(err, refusal) {
			return true
		}
	}
	return false
}

// await waits for a paho token and wraps any failure in sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no acknowledgement within %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *Client) connected() {
	c.up.Store(true)
	c.resubscribe()
	c.announce("online", "", 0)

	c.hooksMu.RLock()
	hook := c.onConnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) connectionLost(err error) {
	c.up.Store(false)

	c.hooksMu.RLock()
	hook := c.onDisconnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// resubscribe restores every tracked subscription after a reconnect.
// Failures are logged; paho retries on the next reconnect.
func (c *Client) resubscribe() {
	c.subs.each(func(s subscription) {
		token := c.paho.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
		go func() {
			if err := await(token, defaultPublishTimeout, ErrSubscribeFailed); err != nil {
				if l := c.getLogger(); l != nil {
					l.Warn("MQTT resubscribe failed", "topic", s.topic, "error", err)
				}
			}
		}()
	})
}

// announce publishes a retained status message to cfg.StatusTopic.
// With wait == 0 it does not block on the broker acknowledgement.
func (c *Client) announce(status, reason string, wait time.Duration) {
	if c.cfg.StatusTopic == "" {
		return
	}
	token := c.paho.Publish(c.cfg.StatusTopic, 1, true, buildStatusPayload(c.cfg.ClientID, status, reason))
	if wait > 0 {
		token.WaitTimeout(wait)
	}
}

// Close publishes a graceful "offline" status (distinct from the LWT
// "unexpected_disconnect") and disconnects. Safe on an unconnected Client.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce("offline", "shutdown", defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// ClientID returns the MQTT client identifier in use.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// SetOnConnect registers a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect registers a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets the logger. Without one, handler errors are dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, recovering panics so one bad
// message cannot kill paho's delivery goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.getLogger(); l != nil {
					l.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.getLogger(); l != nil {
				l.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
