// Package monitor ties the detectors to the voice check and the SOS cascade,
// and keeps the monitoring service alive.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saaga0h/sahay-platform/internal/cascade"
	"github.com/saaga0h/sahay-platform/internal/classifier"
	"github.com/saaga0h/sahay-platform/internal/inactivity"
	"github.com/saaga0h/sahay-platform/internal/settings"
	"github.com/saaga0h/sahay-platform/internal/timeline"
	"github.com/saaga0h/sahay-platform/internal/voice"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

// Confirmer asks the user whether they are safe
type Confirmer interface {
	Confirm(ctx context.Context) voice.Outcome
}

// Escalator runs the SOS cascade
type Escalator interface {
	Escalate(ctx context.Context, reason string) cascade.EscalationReport
}

// EmergencyBroadcast is published on the emergency topic
type EmergencyBroadcast struct {
	Device    string    `json:"device"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Emergency sources
const (
	SourceInactivity = "inactivity"
	SourceVoice      = "voice"
	SourceFall       = "fall"
	SourceUser       = "user"
)

// Deps are the orchestrator's collaborators
type Deps struct {
	Device     string
	Settings   *settings.Store
	Timeline   timeline.Recorder
	Detector   *inactivity.Detector
	Confirmer  Confirmer
	Escalator  Escalator
	Classifier *classifier.Classifier
	MQTT       mqtt.Client
	Threshold  int
}

// Orchestrator routes inactivity alerts through voice confirmation to the
// cascade and handles direct SOS requests.
type Orchestrator struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	runCtx  context.Context

	escalating atomic.Bool
	panics     atomic.Int32
}

// NewOrchestrator creates a stopped orchestrator
func NewOrchestrator(deps Deps, logger *slog.Logger) *Orchestrator {
	if deps.Threshold <= 0 {
		deps.Threshold = classifier.DefaultThreshold
	}
	return &Orchestrator{deps: deps, now: time.Now, logger: logger}
}

// Start begins inactivity monitoring. Starting a running service is a no-op
// unless its detector loop has died, in which case it is restarted.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		if o.deps.Detector.Running() {
			o.mu.Unlock()
			return nil
		}
		o.logger.Warn("Inactivity detector exited, restarting")
		o.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.runCtx = runCtx
	o.running = true
	o.mu.Unlock()

	o.deps.Detector.OnInactive(o.handleInactivity)
	if err := o.deps.Detector.Start(runCtx); err != nil {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to start inactivity detector: %w", err)
	}

	if err := o.deps.Settings.SetServiceRunning(ctx, true); err != nil {
		o.logger.Warn("Failed to record service state", "error", err)
	}
	o.record(ctx, timeline.MonitoringStarted, "Safety monitoring started")
	o.logger.Info("Safety monitoring started", "device", o.deps.Device)
	return nil
}

// Stop halts monitoring. It is safe to call repeatedly.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.cancel = nil
	o.runCtx = nil
	o.mu.Unlock()

	cancel()
	o.deps.Detector.Stop()

	if err := o.deps.Settings.SetServiceRunning(ctx, false); err != nil {
		o.logger.Warn("Failed to record service state", "error", err)
	}
	o.record(ctx, timeline.MonitoringStopped, "Safety monitoring stopped")
	o.logger.Info("Safety monitoring stopped", "device", o.deps.Device)
}

// EnableMonitoring stores the user's toggle and starts the service
func (o *Orchestrator) EnableMonitoring(ctx context.Context) error {
	if err := o.deps.Settings.SetMonitoringEnabled(ctx, true); err != nil {
		return fmt.Errorf("failed to enable monitoring: %w", err)
	}
	return o.Start(ctx)
}

// DisableMonitoring stores the user's toggle and stops the service
func (o *Orchestrator) DisableMonitoring(ctx context.Context) error {
	if err := o.deps.Settings.SetMonitoringEnabled(ctx, false); err != nil {
		return fmt.Errorf("failed to disable monitoring: %w", err)
	}
	o.Stop(ctx)
	return nil
}

// Alive reports whether the service and its detector are running
func (o *Orchestrator) Alive() bool {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	return running && o.deps.Detector.Running()
}

// TriggerSOS escalates immediately on an explicit user request
func (o *Orchestrator) TriggerSOS(ctx context.Context, reason string) (cascade.EscalationReport, error) {
	if reason == "" {
		reason = "SOS button pressed"
	}
	return o.escalate(ctx, SourceUser, reason)
}

// HandleUtterance classifies free-form speech and escalates when it crosses
// the trigger threshold. It reports whether an escalation ran.
func (o *Orchestrator) HandleUtterance(ctx context.Context, text string) bool {
	if o.deps.Classifier == nil {
		return false
	}
	result := o.deps.Classifier.Classify(ctx, text)
	if !classifier.Triggers(result, o.deps.Threshold) {
		o.logger.Debug("Utterance below trigger threshold", "confidence", result.Confidence)
		return false
	}

	_, err := o.escalate(ctx, SourceVoice, fmt.Sprintf("Emergency speech detected: %q", text))
	return err == nil
}

// Escalate runs the cascade for an emergency from another subsystem
func (o *Orchestrator) Escalate(ctx context.Context, source, reason string) (cascade.EscalationReport, error) {
	return o.escalate(ctx, source, reason)
}

// ErrEscalationInProgress is returned when a cascade is already running
var ErrEscalationInProgress = errors.New("escalation already in progress")

func (o *Orchestrator) escalate(ctx context.Context, source, reason string) (cascade.EscalationReport, error) {
	if !o.escalating.CompareAndSwap(false, true) {
		o.logger.Warn("Escalation already in progress, skipping", "source", source)
		return cascade.EscalationReport{}, ErrEscalationInProgress
	}
	defer o.escalating.Store(false)

	o.broadcast(source, reason)

	report := o.deps.Escalator.Escalate(ctx, reason)

	o.record(ctx, timeline.SOSTriggered, fmt.Sprintf("%s (sms %d, whatsapp %t, calls %d)",
		reason, report.SMSSent, report.WhatsAppSent, report.MissedCalls.CallsPlaced))
	return report, nil
}

// handleInactivity runs on the detector goroutine once per latched alert.
// ctx is cancelled when activity resumes; escalations run on the service
// context so a touch cannot abort a cascade that is already under way.
func (o *Orchestrator) handleInactivity(ctx context.Context) {
	defer o.recoverPanic("inactivity handler")

	asleep, err := o.deps.Settings.InSleepWindow(ctx, o.now())
	if err != nil {
		o.logger.Warn("Failed to re-check sleep window", "error", err)
	}
	if asleep {
		o.logger.Info("Inactivity alert inside sleep window, ignoring")
		o.deps.Detector.ResetAlert()
		return
	}

	threshold, _ := o.deps.Settings.Threshold(ctx)
	voiceEnabled, err := o.deps.Settings.VoiceConfirmationEnabled(ctx)
	if err != nil {
		o.logger.Warn("Failed to read voice confirmation setting, asking anyway", "error", err)
	}

	escCtx := o.escalationContext(ctx)
	if !voiceEnabled || o.deps.Confirmer == nil {
		if ctx.Err() != nil {
			o.logger.Info("Activity resumed before escalation")
			return
		}
		o.escalateAlert(escCtx, fmt.Sprintf("No activity detected for %d seconds", threshold))
		return
	}

	outcome := o.deps.Confirmer.Confirm(ctx)
	if ctx.Err() != nil && outcome != voice.OutcomeHelp {
		o.logger.Info("Activity resumed during safety check, standing down", "outcome", outcome)
		return
	}

	switch outcome {
	case voice.OutcomeSafe:
		o.record(escCtx, timeline.VoiceCheckOK, "User confirmed they are safe")
		o.deps.Detector.ResetAlert()

	case voice.OutcomeHelp:
		o.record(escCtx, timeline.VoiceCheckHelp, "User asked for help")
		o.escalateAlert(escCtx, "User asked for help during a safety check")

	case voice.OutcomeTimeout:
		o.record(escCtx, timeline.VoiceCheckTimeout, "No response to voice safety check")
		o.escalateAlert(escCtx, fmt.Sprintf("No activity for %d seconds and no response to a safety check", threshold))

	case voice.OutcomeCancelled:
		o.logger.Info("Voice safety check cancelled")
	}
}

// escalateAlert escalates an inactivity alert. When another cascade is
// already running it covers this alert too.
func (o *Orchestrator) escalateAlert(ctx context.Context, reason string) {
	if _, err := o.escalate(ctx, SourceInactivity, reason); err != nil {
		o.logger.Info("Inactivity alert covered by running escalation", "error", err)
	}
}

func (o *Orchestrator) escalationContext(alertCtx context.Context) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runCtx != nil {
		return o.runCtx
	}
	return context.WithoutCancel(alertCtx)
}

func (o *Orchestrator) broadcast(source, reason string) {
	if o.deps.MQTT == nil {
		return
	}
	msg := EmergencyBroadcast{
		Device:    o.deps.Device,
		Source:    source,
		Reason:    reason,
		Timestamp: o.now(),
	}
	if err := mqtt.PublishJSON(o.deps.MQTT, mqtt.EmergencyTopic(o.deps.Device), 1, false, msg); err != nil {
		o.logger.Warn("Failed to broadcast emergency", "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, eventType timeline.EventType, description string) {
	if o.deps.Timeline == nil {
		return
	}
	if err := o.deps.Timeline.Append(ctx, eventType, description); err != nil {
		o.logger.Warn("Failed to append timeline event", "type", eventType, "error", err)
	}
}

func (o *Orchestrator) recoverPanic(name string) {
	if r := recover(); r != nil {
		o.panics.Add(1)
		o.logger.Error("Recovered panic", "subsystem", name, "panic", r)
	}
}
