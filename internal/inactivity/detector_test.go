package inactivity

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sahay-platform/internal/settings"
	"github.com/saaga0h/sahay-platform/internal/timeline"
	"github.com/saaga0h/sahay-platform/pkg/config"
	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
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

type fixture struct {
	detector *Detector
	store    *settings.Store
	clock    *fakeClock
	rec      *recorder
	fired    int
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	store := settings.NewStore(redis.NewMockClient(), "dev1", testLogger())
	_, err := store.SetThreshold(context.Background(), threshold)
	require.NoError(t, err)

	f := &fixture{
		store: store,
		clock: &fakeClock{t: time.Date(2026, 3, 10, 14, 0, 0, 0, time.Local)},
		rec:   &recorder{},
	}
	f.detector = NewDetector(store, f.rec, testLogger())
	f.detector.now = f.clock.Now
	f.detector.OnInactive(func(ctx context.Context) { f.fired++ })

	now := f.clock.Now()
	f.detector.lastTouch = now
	f.detector.lastMotion = now
	return f
}

func TestCheckInterval(t *testing.T) {
	tests := []struct {
		threshold int
		want      time.Duration
	}{
		{10, 5 * time.Second},
		{15, 5 * time.Second},
		{30, 10 * time.Second},
		{7200, 40 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CheckInterval(tt.threshold), "threshold %d", tt.threshold)
	}
}

func TestDetector_RequiresBothSignalsIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	// Motion keeps arriving, touch goes stale
	f.clock.Advance(20 * time.Second)
	f.detector.OnMotionDetected(ctx)
	f.clock.Advance(20 * time.Second)

	assert.False(t, f.detector.check(ctx), "motion within threshold must suppress alert")
	assert.Equal(t, 0, f.fired)

	f.clock.Advance(15 * time.Second)
	assert.True(t, f.detector.check(ctx))
	assert.Equal(t, 1, f.fired)
	assert.True(t, f.detector.AlertActive())
	assert.Equal(t, []timeline.EventType{timeline.InactivityDetected}, f.rec.events)
}

func TestDetector_LatchFiresOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	f.clock.Advance(11 * time.Second)
	assert.True(t, f.detector.check(ctx))
	f.clock.Advance(time.Minute)
	assert.False(t, f.detector.check(ctx))
	assert.Equal(t, 1, f.fired)

	f.detector.ResetAlert()
	assert.True(t, f.detector.check(ctx), "elapsed time still exceeds threshold after reset")
	assert.Equal(t, 2, f.fired)
}

func TestDetector_ActivityClearsAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	f.clock.Advance(11 * time.Second)
	require.True(t, f.detector.check(ctx))

	f.detector.OnTouchDetected(ctx)
	assert.False(t, f.detector.AlertActive())
	assert.False(t, f.detector.check(ctx))

	state, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().UnixMilli(), state.LastTouch.UnixMilli())
	assert.Equal(t, f.clock.Now().UnixMilli(), state.LastActivity.UnixMilli())
}

func TestDetector_ActivityCancelsAlertHandler(t *testing.T) {
	signals := map[string]func(d *Detector, ctx context.Context){
		"touch":  (*Detector).OnTouchDetected,
		"motion": (*Detector).OnMotionDetected,
	}

	for name, signal := range signals {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, 10)

			var alertCtx context.Context
			f.detector.OnInactive(func(ctx context.Context) { alertCtx = ctx })

			f.clock.Advance(11 * time.Second)
			require.True(t, f.detector.check(ctx))
			require.NotNil(t, alertCtx)
			assert.NoError(t, alertCtx.Err())

			signal(f.detector, ctx)
			assert.ErrorIs(t, alertCtx.Err(), context.Canceled)
		})
	}
}

func TestDetector_SleepWindowSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.clock.t = time.Date(2026, 3, 10, 23, 30, 0, 0, time.Local)
	f.detector.lastTouch = f.clock.t
	f.detector.lastMotion = f.clock.t

	require.NoError(t, f.store.SetSleepMode(ctx, true, "22:00", "06:00"))

	f.clock.Advance(time.Hour)
	assert.False(t, f.detector.check(ctx))
	assert.Equal(t, 0, f.fired)

	require.NoError(t, f.store.SetSleepMode(ctx, false, "22:00", "06:00"))
	assert.True(t, f.detector.check(ctx))
}

func TestDetector_ThresholdChangeTakesEffect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60)

	f.clock.Advance(30 * time.Second)
	assert.False(t, f.detector.check(ctx))

	_, err := f.store.SetThreshold(ctx, 20)
	require.NoError(t, err)
	assert.True(t, f.detector.check(ctx))
}

func TestDetector_StartStopIdempotent(t *testing.T) {
	f := newFixture(t, 30)

	f.detector.Stop()
	require.NoError(t, f.detector.Start(context.Background()))
	require.NoError(t, f.detector.Start(context.Background()))
	assert.True(t, f.detector.Running())

	f.detector.Stop()
	f.detector.Stop()
	assert.False(t, f.detector.Running())
}

func TestDetector_RunningReflectsLoopExit(t *testing.T) {
	f := newFixture(t, 30)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.detector.Start(ctx))
	assert.True(t, f.detector.Running())

	cancel()
	assert.Eventually(t, func() bool { return !f.detector.Running() }, time.Second, 10*time.Millisecond)

	require.NoError(t, f.detector.Start(context.Background()))
	assert.True(t, f.detector.Running())
	f.detector.Stop()
	assert.False(t, f.detector.Running())
}

func TestDetector_StartResetsTimestamps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.detector.lastTouch = time.Time{}
	f.detector.lastMotion = time.Time{}

	require.NoError(t, f.detector.Start(ctx))
	defer f.detector.Stop()

	assert.False(t, f.detector.check(ctx))
	state, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().UnixMilli(), state.LastMotion.UnixMilli())
}

func TestParseActivity(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	tests := []struct {
		name       string
		topic      string
		payload    string
		wantSignal Signal
		wantTime   time.Time
		wantErr    bool
	}{
		{"touch empty payload", "sahay/activity/dev1/touch", "", SignalTouch, now, false},
		{"motion with timestamp", "sahay/activity/dev1/motion", `{"timestamp":1700000005000}`, SignalMotion, time.UnixMilli(1700000005000), false},
		{"unknown signal", "sahay/activity/dev1/tilt", "", "", time.Time{}, true},
		{"bad topic", "sahay/activity/dev1", "", "", time.Time{}, true},
		{"bad json", "sahay/activity/dev1/touch", "{nope", "", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseActivity(tt.topic, []byte(tt.payload), now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "dev1", msg.Device)
			assert.Equal(t, tt.wantSignal, msg.Signal)
			assert.True(t, tt.wantTime.Equal(msg.Timestamp))
		})
	}
}

func TestActivityAgent_FeedsDetector(t *testing.T) {
	f := newFixture(t, 10)
	broker := mqtt.NewMockClient()
	cfg := config.NewConfig()
	cfg.DeviceID = "dev1"

	agent := NewActivityAgent(broker, f.detector, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(broker.Subscriptions()) == 2
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(11 * time.Second)
	require.True(t, f.detector.check(context.Background()))

	broker.Deliver(mqtt.ActivityTopic("other", "touch"), nil)
	assert.True(t, f.detector.AlertActive(), "other devices are ignored")

	broker.Deliver(mqtt.ActivityTopic("dev1", "motion"), []byte("garbage"))
	assert.True(t, f.detector.AlertActive(), "malformed messages are dropped")

	broker.Deliver(mqtt.ActivityTopic("dev1", "motion"), nil)
	assert.False(t, f.detector.AlertActive())

	cancel()
	assert.NoError(t, <-done)
}
