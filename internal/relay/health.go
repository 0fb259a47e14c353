package relay

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// HealthStatus is the status field of a HealthMessage.
type HealthStatus string

const (
	// HealthHealthy means both brokers are reachable and messages flow.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded is reported while the inbound connection is down.
	// The forward side still carries the message, so it is the only
	// failure a health message can describe.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping is the last message published during shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthTopicSuffix is appended to forward.status_topic for health messages,
// keeping them apart from the connection's online/offline status.
const HealthTopicSuffix = "/health"

const defaultHealthInterval = 30 * time.Second

// HealthMessage is published retained at QoS 1 every interval.
type HealthMessage struct {
	Service       string        `json:"service"`
	ClientID      string        `json:"client_id,omitempty"`
	Status        HealthStatus  `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Version       string        `json:"version"`
	Timestamp     time.Time     `json:"timestamp"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Devices       int           `json:"devices"`
	Stats         StatsSnapshot `json:"stats"`
}

// ConnectionState reports whether a connection is up.
type ConnectionState interface {
	IsConnected() bool
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	Topic    string
	ClientID string
	Version  string

	// Interval between messages. Default: 30 seconds.
	Interval time.Duration

	// Publisher carries the health messages (the outbound connection).
	Publisher Publisher

	// Inbound decides between healthy and degraded (optional).
	Inbound ConnectionState

	Stats   *Stats
	Devices int
}

// HealthReporter periodically publishes a HealthMessage and a final
// "stopping" message on Stop.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.RWMutex
	logger Logger
}

// NewHealthReporter creates a reporter. Nothing is published until Start.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	if cfg.Stats == nil {
		cfg.Stats = &Stats{}
	}
	return &HealthReporter{
		cfg:     cfg,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// Start publishes once immediately, then every interval until ctx is
// cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.loop(ctx)
	}()
}

func (h *HealthReporter) loop(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := h.PublishNow(); err != nil {
			h.logError("health publish failed", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the loop and publishes "stopping". Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		if err := h.publish(HealthStopping, ""); err != nil {
			h.logError("final health publish failed", err)
		}
	})
}

// SetLogger sets the logger for publish failures.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// PublishNow publishes the current status. It returns ErrNotConnected when
// the publisher is down, and nil without publishing when no topic is set.
func (h *HealthReporter) PublishNow() error {
	// Only the inbound side is inspected: a health message cannot travel
	// over a forward connection that is down.
	if h.cfg.Inbound != nil && !h.cfg.Inbound.IsConnected() {
		return h.publish(HealthDegraded, "inbound connection down")
	}
	return h.publish(HealthHealthy, "")
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil || h.cfg.Topic == "" {
		return nil
	}
	if !h.cfg.Publisher.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(HealthMessage{
		Service:       "mqtt-forwarder",
		ClientID:      h.cfg.ClientID,
		Status:        status,
		Reason:        reason,
		Version:       h.cfg.Version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Devices:       h.cfg.Devices,
		Stats:         h.cfg.Stats.Snapshot(),
	})
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.mu.RLock()
	logger := h.logger
	h.mu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
