package relay

import (
	"errors"
	"fmt"
	"sync"
)

// mockPublisher implements Publisher for testing.
type mockPublisher struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	messages   []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockPublisher(connected bool) *mockPublisher {
	return &mockPublisher{connected: connected}
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, publishedMessage{
		topic:    topic,
		payload:  payload,
		qos:      qos,
		retained: retained,
	})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) setConnected(c bool) {
	m.mu.Lock()
	m.connected = c
	m.mu.Unlock()
}

func (m *mockPublisher) getMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]publishedMessage, len(m.messages))
	copy(result, m.messages)
	return result
}

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]func(topic string, payload []byte)
	failOn       string
	unsubscribed []string
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{handlers: make(map[string]func(string, []byte))}
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic == m.failOn {
		return errors.New("subscribe rejected")
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *mockSubscriber) topics() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.handlers))
	for t := range m.handlers {
		out[t] = true
	}
	return out
}

// SimulateMessage delivers a message to the handler registered for
// subscription, as the broker would for a matching topic.
func (m *mockSubscriber) SimulateMessage(subscription, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[subscription]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler for %s", subscription)
	}
	handler(topic, payload)
	return nil
}

// mockLogger records log calls by level.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
}

func (l *mockLogger) log(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
	l.mu.Unlock()
}

func (l *mockLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *mockLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *mockLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *mockLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *mockLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// mockMetrics implements MetricsRecorder for testing.
type mockMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockMetrics) WriteForwardOutcome(deviceID, outcome string) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, deviceID+":"+outcome)
	m.mu.Unlock()
}

func (m *mockMetrics) get() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}
