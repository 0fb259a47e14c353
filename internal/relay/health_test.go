package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type connState bool

func (c connState) IsConnected() bool { return bool(c) }

func newTestHealthReporter(pub Publisher, inbound ConnectionState, stats *Stats) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		Topic:     "forwarder/status/health",
		ClientID:  "fwd-out",
		Version:   "1.2.3",
		Interval:  time.Hour,
		Publisher: pub,
		Inbound:   inbound,
		Stats:     stats,
		Devices:   3,
	})
}

func decodeHealth(t *testing.T, payload []byte) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return msg
}

func TestHealthReporter_PublishNow(t *testing.T) {
	pub := newMockPublisher(true)
	stats := &Stats{}
	stats.received.Add(5)
	stats.forwarded.Add(4)
	stats.skipped.Add(1)

	h := newTestHealthReporter(pub, connState(true), stats)
	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msgs := pub.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "forwarder/status/health" || msgs[0].qos != 1 || !msgs[0].retained {
		t.Errorf("publish = %s qos=%d retained=%v", msgs[0].topic, msgs[0].qos, msgs[0].retained)
	}

	msg := decodeHealth(t, msgs[0].payload)
	if msg.Status != HealthHealthy {
		t.Errorf("Status = %q, want healthy", msg.Status)
	}
	if msg.Service != "mqtt-forwarder" || msg.Version != "1.2.3" || msg.ClientID != "fwd-out" || msg.Devices != 3 {
		t.Errorf("message = %+v", msg)
	}
	want := StatsSnapshot{Received: 5, Forwarded: 4, Skipped: 1}
	if msg.Stats != want {
		t.Errorf("Stats = %+v, want %+v", msg.Stats, want)
	}
}

func TestHealthReporter_DegradedWhenInboundDown(t *testing.T) {
	pub := newMockPublisher(true)
	h := newTestHealthReporter(pub, connState(false), nil)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg := decodeHealth(t, pub.getMessages()[0].payload)
	if msg.Status != HealthDegraded || msg.Reason == "" {
		t.Errorf("Status = %q reason = %q, want degraded with reason", msg.Status, msg.Reason)
	}
}

func TestHealthReporter_PublisherDisconnected(t *testing.T) {
	h := newTestHealthReporter(newMockPublisher(false), connState(true), nil)

	if err := h.PublishNow(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishNow() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthReporter_NoTopic(t *testing.T) {
	pub := newMockPublisher(true)
	h := NewHealthReporter(HealthReporterConfig{Publisher: pub})

	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() error = %v", err)
	}
	if len(pub.getMessages()) != 0 {
		t.Error("published without a topic")
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	pub := newMockPublisher(true)
	h := newTestHealthReporter(pub, connState(true), nil)
	h.cfg.Interval = 20 * time.Millisecond

	h.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	h.Stop()
	h.Stop() // second call is a no-op

	msgs := pub.getMessages()
	if len(msgs) < 2 {
		t.Fatalf("published %d messages, want initial plus periodic", len(msgs))
	}
	last := decodeHealth(t, msgs[len(msgs)-1].payload)
	if last.Status != HealthStopping {
		t.Errorf("last Status = %q, want stopping", last.Status)
	}

	// No further publishes after Stop.
	n := len(msgs)
	time.Sleep(50 * time.Millisecond)
	if len(pub.getMessages()) != n {
		t.Error("published after Stop()")
	}
}

func TestHealthReporter_LogsPublishErrors(t *testing.T) {
	pub := newMockPublisher(true)
	pub.publishErr = errors.New("broker gone")
	logger := &mockLogger{}

	h := newTestHealthReporter(pub, connState(true), nil)
	h.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for logger.count("error") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	h.Stop()

	if logger.count("error") == 0 {
		t.Error("initial publish failure not logged")
	}
}
