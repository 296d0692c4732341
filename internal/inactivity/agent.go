package inactivity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

// Signal is the kind of handset activity
type Signal string

const (
	SignalTouch  Signal = "touch"
	SignalMotion Signal = "motion"
)

// ActivityMessage is a parsed activity event
type ActivityMessage struct {
	Device    string
	Signal    Signal
	Timestamp time.Time
}

type activityPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ParseActivity parses sahay/activity/{device}/{signal}. The payload is
// empty or JSON with an optional unix-ms "timestamp".
func ParseActivity(topic string, payload []byte, now time.Time) (*ActivityMessage, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != mqtt.TopicRoot || parts[1] != "activity" || parts[2] == "" {
		return nil, fmt.Errorf("invalid topic format: %s (expected sahay/activity/{device}/{signal})", topic)
	}

	signal := Signal(parts[3])
	if signal != SignalTouch && signal != SignalMotion {
		return nil, fmt.Errorf("unknown activity signal: %s", parts[3])
	}

	msg := &ActivityMessage{Device: parts[2], Signal: signal, Timestamp: now}

	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return msg, nil
	}

	var p activityPayload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if p.Timestamp > 0 {
		msg.Timestamp = time.UnixMilli(p.Timestamp)
	}
	return msg, nil
}

// ActivityAgent feeds handset touch and motion events into the detector
type ActivityAgent struct {
	mqtt     mqtt.Client
	detector *Detector
	cfg      *config.Config
	logger   *slog.Logger
}

// NewActivityAgent creates the agent. The MQTT client must already be
// connected by the caller.
func NewActivityAgent(mqttClient mqtt.Client, detector *Detector, cfg *config.Config, logger *slog.Logger) *ActivityAgent {
	return &ActivityAgent{
		mqtt:     mqttClient,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start subscribes to the activity topics and blocks until ctx is cancelled
func (a *ActivityAgent) Start(ctx context.Context) error {
	handler := func(msg mqtt.Message) {
		a.handleMessage(ctx, msg)
	}

	for _, topic := range []string{mqtt.TopicActivityTouch, mqtt.TopicActivityMotion} {
		if err := a.mqtt.Subscribe(topic, 0, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	a.logger.Info("Activity agent started", "device", a.cfg.DeviceID)

	<-ctx.Done()

	for _, topic := range []string{mqtt.TopicActivityTouch, mqtt.TopicActivityMotion} {
		if err := a.mqtt.Unsubscribe(topic); err != nil {
			a.logger.Debug("Failed to unsubscribe", "topic", topic, "error", err)
		}
	}
	a.logger.Info("Activity agent stopping")
	return nil
}

func (a *ActivityAgent) handleMessage(ctx context.Context, msg mqtt.Message) {
	activity, err := ParseActivity(msg.Topic(), msg.Payload(), time.Now())
	if err != nil {
		a.logger.Warn("Dropping malformed activity message", "topic", msg.Topic(), "error", err)
		return
	}
	if activity.Device != a.cfg.DeviceID {
		return
	}

	switch activity.Signal {
	case SignalTouch:
		a.detector.OnTouchDetected(ctx)
	case SignalMotion:
		a.detector.OnMotionDetected(ctx)
	}

	a.logger.Debug("Activity recorded", "signal", activity.Signal)
}
