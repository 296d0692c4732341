package observer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

// AllTopics captures every SAHAY topic, including agent status and the
// handset bridge traffic.
const AllTopics = "sahay/#"

// CapturedMessage is one MQTT message seen during a run
type CapturedMessage struct {
	Timestamp time.Time   `json:"timestamp"`
	Elapsed   float64     `json:"elapsed_seconds"`
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload"`
}

// Observer records MQTT traffic for later checks
type Observer struct {
	client mqtt.Client
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	start    time.Time
	messages []CapturedMessage
}

// New creates an observer on an already connected client
func New(client mqtt.Client, logger *slog.Logger) *Observer {
	return &Observer{client: client, logger: logger, now: time.Now}
}

// Start subscribes to all SAHAY topics
func (o *Observer) Start() error {
	o.mu.Lock()
	o.start = o.now()
	o.mu.Unlock()

	if err := o.client.Subscribe(AllTopics, 0, o.handle); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", AllTopics, err)
	}
	o.logger.Info("Observer subscribed", "topic", AllTopics)
	return nil
}

// Stop unsubscribes
func (o *Observer) Stop() {
	if err := o.client.Unsubscribe(AllTopics); err != nil {
		o.logger.Warn("Observer unsubscribe failed", "error", err)
	}
}

func (o *Observer) handle(msg mqtt.Message) {
	// Non-JSON payloads such as "FALL_DETECTED" or "online" are kept as strings
	var payload interface{}
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		payload = string(msg.Payload())
	}

	now := o.now()
	o.mu.Lock()
	captured := CapturedMessage{
		Timestamp: now,
		Elapsed:   now.Sub(o.start).Seconds(),
		Topic:     msg.Topic(),
		Payload:   payload,
	}
	o.messages = append(o.messages, captured)
	o.mu.Unlock()

	o.logger.Debug("Captured message", "elapsed", captured.Elapsed, "topic", captured.Topic)
}

// Messages returns a copy of everything captured so far
func (o *Observer) Messages() []CapturedMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]CapturedMessage, len(o.messages))
	copy(out, o.messages)
	return out
}

// SaveCapture writes the captured messages as indented JSON
func (o *Observer) SaveCapture(path string) error {
	data, err := json.MarshalIndent(o.Messages(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save capture: %w", err)
	}
	return nil
}
