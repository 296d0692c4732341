package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sahay-platform/pkg/redis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTimeline_NewestFirstAndCapped(t *testing.T) {
	tl := New(redis.NewMockClient(), "phone", testLogger())
	ctx := context.Background()

	for i := 0; i < MaxEvents+10; i++ {
		require.NoError(t, tl.Append(ctx, InactivityDetected, fmt.Sprintf("event %d", i)))
	}

	events, err := tl.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, MaxEvents)
	assert.Equal(t, fmt.Sprintf("event %d", MaxEvents+9), events[0].Description)
	assert.Equal(t, "event 10", events[MaxEvents-1].Description)
}

func TestTimeline_ConcurrentAppendsNotLost(t *testing.T) {
	tl := New(redis.NewMockClient(), "phone", testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = tl.Append(ctx, SOSTriggered, fmt.Sprintf("sos %d", i))
		}(i)
	}
	wg.Wait()

	events, err := tl.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 20)
}

func TestTimeline_Clear(t *testing.T) {
	tl := New(redis.NewMockClient(), "phone", testLogger())
	ctx := context.Background()

	require.NoError(t, tl.Append(ctx, MonitoringStarted, "started"))
	require.NoError(t, tl.Clear(ctx))

	events, err := tl.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTimeline_SubscribeLatestWins(t *testing.T) {
	tl := New(redis.NewMockClient(), "phone", testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	updates := tl.Subscribe(ctx)

	require.NoError(t, tl.Append(ctx, MonitoringStarted, "one"))
	require.NoError(t, tl.Append(ctx, VoiceCheckOK, "two"))

	select {
	case snapshot := <-updates:
		require.Len(t, snapshot, 2)
		assert.Equal(t, VoiceCheckOK, snapshot[0].Type)
	case <-time.After(time.Second):
		t.Fatal("expected a timeline snapshot")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-updates
		return !open
	}, time.Second, 10*time.Millisecond)
}
