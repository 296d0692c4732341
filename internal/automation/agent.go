package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

// Request actions
const (
	ActionStart  = "start"
	ActionCancel = "cancel"
	ActionRetry  = "retry"
)

// Request is an inbound automation command
type Request struct {
	Action   string `json:"action"`
	Platform string `json:"platform,omitempty"`
	Query    string `json:"query,omitempty"`
}

// ParseRequest decodes and validates a request payload
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("failed to parse automation request: %w", err)
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	if req.Action == "" {
		req.Action = ActionStart
	}

	switch req.Action {
	case ActionStart:
		if req.Platform == "" {
			return Request{}, fmt.Errorf("start request requires a platform")
		}
		if strings.TrimSpace(req.Query) == "" {
			return Request{}, fmt.Errorf("start request requires a query")
		}
	case ActionCancel, ActionRetry:
	default:
		return Request{}, fmt.Errorf("unknown action %q", req.Action)
	}
	return req, nil
}

// Agent exposes the manager over MQTT. Any emergency broadcast preempts
// the running flow.
type Agent struct {
	mqtt    mqtt.Client
	manager *Manager
	cfg     *config.Config
	logger  *slog.Logger
}

// NewAgent creates an automation agent
func NewAgent(mqttClient mqtt.Client, manager *Manager, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:    mqttClient,
		manager: manager,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start subscribes and blocks until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	requestTopic := mqtt.AutomationRequestTopic(a.cfg.DeviceID)
	if err := a.mqtt.Subscribe(requestTopic, 1, func(msg mqtt.Message) {
		a.handleRequest(ctx, msg.Payload())
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", requestTopic, err)
	}

	if err := a.mqtt.Subscribe(mqtt.TopicEmergencyAll, 1, func(msg mqtt.Message) {
		if device, err := mqtt.DeviceFromTopic(msg.Topic()); err != nil || device != a.cfg.DeviceID {
			return
		}
		// Preempt waits for the flow to unwind; keep the delivery goroutine free
		go a.manager.Preempt("emergency")
	}); err != nil {
		return fmt.Errorf("failed to subscribe to emergency broadcasts: %w", err)
	}

	a.logger.Info("Automation agent started", "device", a.cfg.DeviceID)

	statusTopic := mqtt.AutomationStatusTopic(a.cfg.DeviceID)
	for {
		select {
		case <-ctx.Done():
			a.manager.Preempt("shutdown")
			a.logger.Info("Automation agent stopping")
			return nil
		case status := <-a.manager.Updates():
			if err := mqtt.PublishJSON(a.mqtt, statusTopic, 1, true, status); err != nil {
				a.logger.Warn("Failed to publish automation status", "error", err)
			}
		}
	}
}

func (a *Agent) handleRequest(ctx context.Context, payload []byte) {
	req, err := ParseRequest(payload)
	if err != nil {
		a.logger.Warn("Dropping automation request", "error", err)
		return
	}

	switch req.Action {
	case ActionStart:
		job, err := a.manager.Start(ctx, req.Platform, req.Query)
		if err != nil {
			a.logger.Warn("Failed to start automation", "platform", req.Platform, "error", err)
			return
		}
		a.logger.Info("Automation started", "job", job.ID, "platform", req.Platform)
	case ActionCancel:
		go a.manager.Preempt("user cancelled")
	case ActionRetry:
		if _, err := a.manager.Retry(ctx); err != nil {
			a.logger.Warn("Failed to retry automation", "error", err)
		}
	}
}
