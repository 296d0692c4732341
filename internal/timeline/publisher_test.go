package timeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

func lastSnapshot(t *testing.T, broker *mqtt.MockClient) ([]Event, bool) {
	t.Helper()
	msgs := broker.Messages(mqtt.TimelineTopic("phone"))
	if len(msgs) == 0 {
		return nil, false
	}
	last := msgs[len(msgs)-1]
	assert.True(t, last.Retained)

	var events []Event
	require.NoError(t, json.Unmarshal(last.Payload, &events))
	return events, true
}

func TestPublisher_MirrorsChanges(t *testing.T) {
	tl := New(redis.NewMockClient(), "phone", testLogger())
	broker := mqtt.NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewPublisher(tl, broker, "phone", testLogger()).Start(ctx) }()

	require.Eventually(t, func() bool {
		events, ok := lastSnapshot(t, broker)
		return ok && len(events) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tl.Append(ctx, SOSTriggered, "SOS button pressed"))
	require.Eventually(t, func() bool {
		events, ok := lastSnapshot(t, broker)
		return ok && len(events) == 1 && events[0].Type == SOSTriggered
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tl.Clear(ctx))
	require.Eventually(t, func() bool {
		events, ok := lastSnapshot(t, broker)
		return ok && len(events) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}
