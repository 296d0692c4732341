package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/sahay-platform/internal/voice"
)

// VoiceTrigger keeps an always-on listener running and escalates when it
// hears an emergency phrase. Each listener owns one recognizer for its whole
// life, so a new recognizer is requested for every listener.
type VoiceTrigger struct {
	newRecognizer func() voice.Recognizer
	arbiter       *voice.Arbiter
	orchestrator  *Orchestrator
	timings       voice.ListenerTimings
	restartDelay  time.Duration
	logger        *slog.Logger
}

// NewVoiceTrigger creates the loop
func NewVoiceTrigger(newRecognizer func() voice.Recognizer, arbiter *voice.Arbiter, orchestrator *Orchestrator, logger *slog.Logger) *VoiceTrigger {
	return &VoiceTrigger{
		newRecognizer: newRecognizer,
		arbiter:       arbiter,
		orchestrator:  orchestrator,
		timings:       voice.DefaultListenerTimings(),
		restartDelay:  2 * time.Second,
		logger:        logger,
	}
}

// Run blocks until ctx is cancelled or the microphone permission is denied.
// Losing the microphone stops voice triggering only.
func (v *VoiceTrigger) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		listener := voice.NewTriggerListener(v.newRecognizer(), v.arbiter, v.logger)
		listener.SetTimings(v.timings)
		events := listener.Subscribe()

		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("failed to start voice trigger listener: %w", err)
		}

		var event voice.TriggerEvent
		var heard bool
		select {
		case <-ctx.Done():
		case event, heard = <-events:
		}
		listener.Close()

		if heard {
			reason := fmt.Sprintf("Emergency phrase heard: %q", event.Transcript)
			if _, err := v.orchestrator.Escalate(ctx, SourceVoice, reason); err != nil {
				v.logger.Warn("Voice trigger escalation skipped", "error", err)
			}
		} else if listener.State() == voice.ListenerFailed {
			v.logger.Error("Voice trigger disabled, microphone unavailable")
			return nil
		}

		select {
		case <-ctx.Done():
		case <-time.After(v.restartDelay):
		}
	}
	return nil
}
