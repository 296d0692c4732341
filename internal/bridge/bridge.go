// Package bridge talks to the SAHAY handset app over MQTT. Each handset
// capability (speech, telephony, ui, ...) has a command topic and an event
// topic; commands carry an id that the handset echoes back.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

// Handset capabilities
const (
	CapSpeech     = "speech"
	CapRecognizer = "recognizer"
	CapHaptics    = "haptics"
	CapApp        = "app"
	CapSMS        = "sms"
	CapWhatsApp   = "whatsapp"
	CapTelephony  = "telephony"
	CapLocation   = "location"
	CapUI         = "ui"
)

// DefaultTimeout bounds a command when the caller's context has no deadline
const DefaultTimeout = 10 * time.Second

var (
	// ErrClosed is returned after Close
	ErrClosed = errors.New("bridge closed")
	// ErrTimeout means the handset never answered
	ErrTimeout = errors.New("handset did not respond")
)

// Command is published to sahay/device/{device}/{capability}/command
type Command struct {
	ID     string      `json:"id"`
	Action string      `json:"action"`
	Args   interface{} `json:"args,omitempty"`
}

// Event arrives on sahay/device/{device}/{capability}/event. Type "partial"
// events are interim results for a still-open command.
type Event struct {
	ID    string          `json:"id"`
	Type  string          `json:"type,omitempty"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HandsetError is a failure reported by the handset
type HandsetError struct {
	Capability string
	Action     string
	Code       string
	Message    string
}

func (e *HandsetError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s failed (%s): %s", e.Capability, e.Action, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Capability, e.Action, e.Message)
}

type pending struct {
	result  chan Event
	partial func(Event)
}

// Bridge correlates commands with handset events
type Bridge struct {
	mqtt    mqtt.Client
	device  string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*pending
	started bool
	closed  bool
}

// New creates a bridge for one handset
func New(mqttClient mqtt.Client, device string, logger *slog.Logger) *Bridge {
	return &Bridge{
		mqtt:    mqttClient,
		device:  device,
		timeout: DefaultTimeout,
		logger:  logger,
		pending: make(map[string]*pending),
	}
}

// SetTimeout changes the default command timeout
func (b *Bridge) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

// Start subscribes to the handset's event topics
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	topic := mqtt.DeviceEventTopic(b.device, "+")
	if err := b.mqtt.Subscribe(topic, 1, b.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	b.started = true
	b.logger.Info("Handset bridge started", "device", b.device)
	return nil
}

// Close fails every outstanding command
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, p := range b.pending {
		close(p.result)
		delete(b.pending, id)
	}
	if b.started {
		if err := b.mqtt.Unsubscribe(mqtt.DeviceEventTopic(b.device, "+")); err != nil {
			b.logger.Debug("Failed to unsubscribe handset events", "error", err)
		}
	}
}

// Request publishes a command and waits for its result event
func (b *Bridge) Request(ctx context.Context, capability, action string, args interface{}) (json.RawMessage, error) {
	return b.request(ctx, capability, action, args, nil)
}

// Notify publishes a command without waiting for an answer
func (b *Bridge) Notify(capability, action string, args interface{}) error {
	cmd := Command{ID: uuid.New().String(), Action: action, Args: args}
	return mqtt.PublishJSON(b.mqtt, mqtt.DeviceCommandTopic(b.device, capability), 1, false, cmd)
}

func (b *Bridge) request(ctx context.Context, capability, action string, args interface{}, partial func(Event)) (json.RawMessage, error) {
	id := uuid.New().String()
	p := &pending{result: make(chan Event, 1), partial: partial}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[id] = p
	timeout := b.timeout
	b.mu.Unlock()

	defer b.forget(id)

	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := Command{ID: id, Action: action, Args: args}
	if err := mqtt.PublishJSON(b.mqtt, mqtt.DeviceCommandTopic(b.device, capability), 1, false, cmd); err != nil {
		return nil, fmt.Errorf("failed to send %s %s: %w", capability, action, err)
	}

	select {
	case ev, ok := <-p.result:
		if !ok {
			return nil, ErrClosed
		}
		if !ev.OK {
			return nil, &HandsetError{Capability: capability, Action: action, Code: ev.Code, Message: ev.Error}
		}
		return ev.Data, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w", capability, action, ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Bridge) handleEvent(msg mqtt.Message) {
	var ev Event
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		b.logger.Warn("Dropping malformed handset event", "topic", msg.Topic(), "error", err)
		return
	}
	if ev.ID == "" {
		b.logger.Debug("Ignoring uncorrelated handset event", "topic", msg.Topic())
		return
	}

	b.mu.Lock()
	p, ok := b.pending[ev.ID]
	if ok && !strings.EqualFold(ev.Type, "partial") {
		delete(b.pending, ev.ID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if strings.EqualFold(ev.Type, "partial") {
		if p.partial != nil {
			p.partial(ev)
		}
		return
	}
	p.result <- ev
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
