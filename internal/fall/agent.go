package fall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

// Wearable message kinds
const (
	KindFallDetected = "FALL_DETECTED"
	KindHeartbeat    = "HEARTBEAT"
	KindBattery      = "BATTERY"
	KindUnknown      = "UNKNOWN"
)

// WearableEvent is a parsed wearable message
type WearableEvent struct {
	Kind    string
	Battery int
	Raw     string
}

type wearablePayload struct {
	Event   string `json:"event"`
	Battery *int   `json:"battery,omitempty"`
}

// ParseWearableEvent accepts "FALL_DETECTED", "HEARTBEAT", "BATTERY:<n>" or
// JSON {"event": "...", "battery": n}.
func ParseWearableEvent(payload []byte) WearableEvent {
	raw := strings.TrimSpace(string(payload))
	ev := WearableEvent{Kind: KindUnknown, Raw: raw}

	if strings.HasPrefix(raw, "{") {
		var p wearablePayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return ev
		}
		ev.Kind = normalizeKind(p.Event)
		if p.Battery != nil {
			ev.Battery = *p.Battery
		}
		return ev
	}

	name, value, _ := strings.Cut(raw, ":")
	ev.Kind = normalizeKind(name)
	if ev.Kind == KindBattery {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			ev.Battery = n
		}
	}
	return ev
}

func normalizeKind(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case KindFallDetected:
		return KindFallDetected
	case KindHeartbeat:
		return KindHeartbeat
	case KindBattery:
		return KindBattery
	default:
		return KindUnknown
	}
}

// Agent turns wearable events into fall countdowns
type Agent struct {
	mqtt      mqtt.Client
	countdown *Countdown
	cfg       *config.Config
	logger    *slog.Logger
}

// NewAgent wires the countdown to MQTT. Countdown status is published for
// the handset UI on every tick.
func NewAgent(mqttClient mqtt.Client, countdown *Countdown, cfg *config.Config, logger *slog.Logger) *Agent {
	a := &Agent{
		mqtt:      mqttClient,
		countdown: countdown,
		cfg:       cfg,
		logger:    logger,
	}
	countdown.OnTick(a.publishStatus)
	return a
}

// Start subscribes and blocks until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	if err := a.mqtt.Subscribe(mqtt.TopicWearableEvents, 1, func(msg mqtt.Message) {
		a.handleWearable(ctx, msg)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to wearable events: %w", err)
	}

	dismissTopic := mqtt.FallDismissTopic(a.cfg.DeviceID)
	if err := a.mqtt.Subscribe(dismissTopic, 1, func(msg mqtt.Message) {
		if a.countdown.Dismiss(ctx) {
			a.logger.Info("Fall alert dismissed from handset")
		}
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", dismissTopic, err)
	}

	a.logger.Info("Fall agent started", "device", a.cfg.DeviceID)

	<-ctx.Done()
	a.logger.Info("Fall agent stopping")
	return nil
}

func (a *Agent) handleWearable(ctx context.Context, msg mqtt.Message) {
	device, err := mqtt.DeviceFromTopic(msg.Topic())
	if err != nil {
		a.logger.Warn("Dropping wearable message", "topic", msg.Topic(), "error", err)
		return
	}
	if device != a.cfg.DeviceID {
		return
	}

	ev := ParseWearableEvent(msg.Payload())
	switch ev.Kind {
	case KindFallDetected:
		a.countdown.Trigger(ctx)
	case KindHeartbeat:
		a.logger.Debug("Wearable heartbeat")
	case KindBattery:
		a.logger.Info("Wearable battery level", "percent", ev.Battery)
	default:
		a.logger.Debug("Ignoring wearable message", "payload", ev.Raw)
	}
}

func (a *Agent) publishStatus(status Status) {
	topic := mqtt.FallStatusTopic(a.cfg.DeviceID)
	if err := mqtt.PublishJSON(a.mqtt, topic, 0, true, status); err != nil {
		a.logger.Debug("Failed to publish fall status", "error", err)
	}
}
