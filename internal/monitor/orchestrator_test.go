package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sahay-platform/internal/cascade"
	"github.com/saaga0h/sahay-platform/internal/classifier"
	"github.com/saaga0h/sahay-platform/internal/inactivity"
	"github.com/saaga0h/sahay-platform/internal/settings"
	"github.com/saaga0h/sahay-platform/internal/timeline"
	"github.com/saaga0h/sahay-platform/internal/voice"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeConfirmer struct {
	outcome voice.Outcome
	calls   atomic.Int32
	panic   bool
	during  func()
}

func (f *fakeConfirmer) Confirm(ctx context.Context) voice.Outcome {
	f.calls.Add(1)
	if f.panic {
		panic("speech engine crashed")
	}
	if f.during != nil {
		f.during()
	}
	return f.outcome
}

type fakeEscalator struct {
	mu      sync.Mutex
	reasons []string
	ctxErrs []error
	block   chan struct{}
}

func (f *fakeEscalator) Escalate(ctx context.Context, reason string) cascade.EscalationReport {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()
	return cascade.EscalationReport{Reason: reason, SMSSent: 2}
}

func (f *fakeEscalator) Reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}

type recorder struct {
	mu     sync.Mutex
	events []timeline.EventType
}

func (r *recorder) Append(ctx context.Context, eventType timeline.EventType, description string) error {
	r.mu.Lock()
	r.events = append(r.events, eventType)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Events() []timeline.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]timeline.EventType(nil), r.events...)
}

type fixture struct {
	orch      *Orchestrator
	store     *settings.Store
	detector  *inactivity.Detector
	confirmer *fakeConfirmer
	escalator *fakeEscalator
	rec       *recorder
	broker    *mqtt.MockClient
}

func newFixture(outcome voice.Outcome) *fixture {
	store := settings.NewStore(redis.NewMockClient(), "dev1", testLogger())
	rec := &recorder{}
	f := &fixture{
		store:     store,
		detector:  inactivity.NewDetector(store, rec, testLogger()),
		confirmer: &fakeConfirmer{outcome: outcome},
		escalator: &fakeEscalator{},
		rec:       rec,
		broker:    mqtt.NewMockClient(),
	}
	f.orch = NewOrchestrator(Deps{
		Device:     "dev1",
		Settings:   store,
		Timeline:   rec,
		Detector:   f.detector,
		Confirmer:  f.confirmer,
		Escalator:  f.escalator,
		Classifier: classifier.New(nil, time.Second, testLogger()),
		MQTT:       f.broker,
	}, testLogger())
	f.orch.now = func() time.Time { return time.Date(2026, 3, 10, 14, 0, 0, 0, time.Local) }
	return f
}

func TestOrchestrator_InactivityOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		outcome       voice.Outcome
		wantEvents    []timeline.EventType
		wantEscalated bool
	}{
		{"safe", voice.OutcomeSafe, []timeline.EventType{timeline.VoiceCheckOK}, false},
		{"help", voice.OutcomeHelp, []timeline.EventType{timeline.VoiceCheckHelp, timeline.SOSTriggered}, true},
		{"timeout", voice.OutcomeTimeout, []timeline.EventType{timeline.VoiceCheckTimeout, timeline.SOSTriggered}, true},
		{"cancelled", voice.OutcomeCancelled, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.outcome)
			f.orch.handleInactivity(context.Background())

			assert.Equal(t, tt.wantEvents, f.rec.Events())
			assert.Equal(t, tt.wantEscalated, len(f.escalator.Reasons()) == 1)
			assert.Equal(t, tt.wantEscalated, len(f.broker.Messages(mqtt.EmergencyTopic("dev1"))) == 1)
		})
	}
}

func TestOrchestrator_ActivityDuringVoiceCheck(t *testing.T) {
	t.Run("timeout after touch stands down", func(t *testing.T) {
		f := newFixture(voice.OutcomeTimeout)
		ctx, cancel := context.WithCancel(context.Background())
		f.confirmer.during = cancel

		f.orch.handleInactivity(ctx)

		assert.Empty(t, f.escalator.Reasons())
		assert.Empty(t, f.rec.Events())
		assert.Empty(t, f.broker.Messages(mqtt.EmergencyTopic("dev1")))
	})

	t.Run("explicit help still escalates", func(t *testing.T) {
		f := newFixture(voice.OutcomeHelp)
		ctx, cancel := context.WithCancel(context.Background())
		f.confirmer.during = cancel

		f.orch.handleInactivity(ctx)

		require.Len(t, f.escalator.Reasons(), 1)
		assert.NoError(t, f.escalator.ctxErrs[0], "cascade must not inherit the cancelled alert context")
	})
}

func TestOrchestrator_RestartsDeadDetector(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.orch.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !f.orch.Alive() }, time.Second, 10*time.Millisecond)

	require.NoError(t, f.orch.Start(context.Background()))
	assert.True(t, f.orch.Alive())
	f.orch.Stop(context.Background())
}

func TestOrchestrator_VoiceDisabledEscalatesDirectly(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)
	require.NoError(t, f.store.SetVoiceConfirmationEnabled(context.Background(), false))

	f.orch.handleInactivity(context.Background())

	assert.Equal(t, int32(0), f.confirmer.calls.Load())
	assert.Equal(t, []string{"No activity detected for 30 seconds"}, f.escalator.Reasons())
	assert.Equal(t, []timeline.EventType{timeline.SOSTriggered}, f.rec.Events())
}

func TestOrchestrator_SleepWindowRecheck(t *testing.T) {
	f := newFixture(voice.OutcomeHelp)
	require.NoError(t, f.store.SetSleepMode(context.Background(), true, "13:00", "15:00"))

	f.orch.handleInactivity(context.Background())

	assert.Equal(t, int32(0), f.confirmer.calls.Load())
	assert.Empty(t, f.escalator.Reasons())
}

func TestOrchestrator_PanicRecovered(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)
	f.confirmer.panic = true

	assert.NotPanics(t, func() { f.orch.handleInactivity(context.Background()) })
	assert.Equal(t, int32(1), f.orch.panics.Load())
}

func TestOrchestrator_StartStop(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)
	ctx := context.Background()

	require.NoError(t, f.orch.Start(ctx))
	require.NoError(t, f.orch.Start(ctx))
	assert.True(t, f.orch.Alive())
	running, _ := f.store.ServiceRunning(ctx)
	assert.True(t, running)

	f.orch.Stop(ctx)
	f.orch.Stop(ctx)
	assert.False(t, f.orch.Alive())
	running, _ = f.store.ServiceRunning(ctx)
	assert.False(t, running)

	assert.Equal(t, []timeline.EventType{timeline.MonitoringStarted, timeline.MonitoringStopped}, f.rec.Events())
}

func TestOrchestrator_TriggerSOS(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)

	report, err := f.orch.TriggerSOS(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "SOS button pressed", report.Reason)

	msgs := f.broker.Messages(mqtt.EmergencyTopic("dev1"))
	require.Len(t, msgs, 1)
	var b EmergencyBroadcast
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &b))
	assert.Equal(t, SourceUser, b.Source)
	assert.Equal(t, "dev1", b.Device)
}

func TestOrchestrator_SingleEscalationAtATime(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)
	f.escalator.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		f.orch.TriggerSOS(context.Background(), "first")
		close(done)
	}()
	require.Eventually(t, func() bool { return f.orch.escalating.Load() }, time.Second, time.Millisecond)

	_, err := f.orch.TriggerSOS(context.Background(), "second")
	assert.True(t, errors.Is(err, ErrEscalationInProgress))

	close(f.escalator.block)
	<-done
	assert.Equal(t, []string{"first"}, f.escalator.Reasons())
}

func TestOrchestrator_HandleUtterance(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)

	assert.False(t, f.orch.HandleUtterance(context.Background(), "what is for dinner"))
	assert.True(t, f.orch.HandleUtterance(context.Background(), "please call an ambulance"))
	require.Len(t, f.escalator.Reasons(), 1)
}

func TestOrchestrator_EnableDisable(t *testing.T) {
	f := newFixture(voice.OutcomeSafe)
	ctx := context.Background()

	require.NoError(t, f.orch.EnableMonitoring(ctx))
	enabled, _ := f.store.MonitoringEnabled(ctx)
	assert.True(t, enabled)
	assert.True(t, f.orch.Alive())

	require.NoError(t, f.orch.DisableMonitoring(ctx))
	enabled, _ = f.store.MonitoringEnabled(ctx)
	assert.False(t, enabled)
	assert.False(t, f.orch.Alive())
}
