package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

type sosRequest struct {
	Reason string `json:"reason"`
}

// Agent feeds handset requests into the orchestrator: SOS presses,
// monitoring toggles and transcripts for classification.
type Agent struct {
	mqtt         mqtt.Client
	orchestrator *Orchestrator
	cfg          *config.Config
	logger       *slog.Logger
}

// NewAgent creates a monitor agent
func NewAgent(mqttClient mqtt.Client, orchestrator *Orchestrator, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:         mqttClient,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start subscribes and blocks until ctx is cancelled. Escalations run off
// the delivery goroutine since a cascade takes minutes.
func (a *Agent) Start(ctx context.Context) error {
	device := a.cfg.DeviceID

	subs := map[string]mqtt.MessageHandler{
		mqtt.SOSRequestTopic(device): func(msg mqtt.Message) {
			reason := parseSOSReason(msg.Payload())
			go func() {
				if _, err := a.orchestrator.TriggerSOS(ctx, reason); err != nil {
					a.logger.Warn("SOS request not escalated", "error", err)
				}
			}()
		},
		mqtt.MonitoringControlTopic(device): func(msg mqtt.Message) {
			a.handleToggle(ctx, msg.Payload())
		},
		mqtt.VoiceTranscriptTopic(device): func(msg mqtt.Message) {
			text := strings.TrimSpace(string(msg.Payload()))
			if text == "" {
				return
			}
			go a.orchestrator.HandleUtterance(ctx, text)
		},
	}

	for topic, handler := range subs {
		if err := a.mqtt.Subscribe(topic, 1, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	a.logger.Info("Monitor agent started", "device", device)
	<-ctx.Done()
	a.logger.Info("Monitor agent stopping")
	return nil
}

func (a *Agent) handleToggle(ctx context.Context, payload []byte) {
	var err error
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "on", "true", "1", "enable":
		err = a.orchestrator.EnableMonitoring(ctx)
	case "off", "false", "0", "disable":
		err = a.orchestrator.DisableMonitoring(ctx)
	default:
		a.logger.Warn("Ignoring monitoring toggle", "payload", string(payload))
		return
	}
	if err != nil {
		a.logger.Error("Failed to toggle monitoring", "error", err)
	}
}

// parseSOSReason accepts JSON {"reason": "..."} or plain text
func parseSOSReason(payload []byte) string {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var req sosRequest
		if err := json.Unmarshal([]byte(raw), &req); err == nil {
			return strings.TrimSpace(req.Reason)
		}
		return ""
	}
	return raw
}
