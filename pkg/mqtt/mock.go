package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// PublishJSON marshals v and publishes it to topic
func PublishJSON(c Client, topic string, qos byte, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	return c.Publish(topic, qos, retained, payload)
}

// TopicMatches reports whether topic matches a subscription filter with + and # wildcards
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// PublishedMessage records a Publish call on MockClient
type PublishedMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// MockClient is an in-memory broker for tests. Publish delivers synchronously
// to matching subscribers.
type MockClient struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string][]MessageHandler
	Published []PublishedMessage

	ConnectErr error
	PublishErr error
}

// NewMockClient creates a disconnected mock client
func NewMockClient() *MockClient {
	return &MockClient{handlers: make(map[string][]MessageHandler)}
}

func (m *MockClient) Connect(ctx context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Disconnect() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *MockClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	m.mu.Lock()
	m.handlers[topic] = append(m.handlers[topic], handler)
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	delete(m.handlers, topic)
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}

	m.mu.Lock()
	m.Published = append(m.Published, PublishedMessage{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	var matched []MessageHandler
	for filter, hs := range m.handlers {
		if TopicMatches(filter, topic) {
			matched = append(matched, hs...)
		}
	}
	m.mu.Unlock()

	for _, h := range matched {
		h(&mockMessage{topic: topic, payload: payload})
	}
	return nil
}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Messages returns a copy of everything published to topics matching filter
func (m *MockClient) Messages(filter string) []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PublishedMessage
	for _, p := range m.Published {
		if TopicMatches(filter, p.Topic) {
			out = append(out, p)
		}
	}
	return out
}

// Subscriptions returns the currently subscribed filters
func (m *MockClient) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.handlers))
	for filter := range m.handlers {
		out = append(out, filter)
	}
	return out
}

// Deliver injects an inbound message as if it arrived from the broker
func (m *MockClient) Deliver(topic string, payload []byte) {
	m.mu.Lock()
	var matched []MessageHandler
	for filter, hs := range m.handlers {
		if TopicMatches(filter, topic) {
			matched = append(matched, hs...)
		}
	}
	m.mu.Unlock()

	for _, h := range matched {
		h(&mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Topic() string   { return m.topic }
func (m *mockMessage) Payload() []byte { return m.payload }
func (m *mockMessage) Ack()            {}
