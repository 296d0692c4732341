// Package timeline keeps the append-only safety audit log shown to caregivers.
// The log never drives decisions.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/sahay-platform/pkg/redis"
)

// MaxEvents is the number of entries kept; older entries are evicted
const MaxEvents = 50

// EventType classifies a timeline entry
type EventType string

const (
	InactivityDetected EventType = "inactivity_detected"
	VoiceCheckOK       EventType = "voice_check_ok"
	VoiceCheckHelp     EventType = "voice_check_help"
	VoiceCheckTimeout  EventType = "voice_check_timeout"
	SOSTriggered       EventType = "sos_triggered"
	MonitoringStarted  EventType = "monitoring_started"
	MonitoringStopped  EventType = "monitoring_stopped"
)

// Event is one timeline entry
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
}

// Recorder is what detectors need to log events
type Recorder interface {
	Append(ctx context.Context, eventType EventType, description string) error
}

// Timeline is a Redis-backed capped list, newest first
type Timeline struct {
	redis  redis.Client
	key    string
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	observers []chan []Event
}

// New creates the timeline for one device
func New(client redis.Client, device string, logger *slog.Logger) *Timeline {
	return &Timeline{
		redis:  client,
		key:    redis.SafetyTimelineKey(device),
		now:    time.Now,
		logger: logger,
	}
}

// Append adds an event at the head and trims to MaxEvents in one atomic step
func (t *Timeline) Append(ctx context.Context, eventType EventType, description string) error {
	event := Event{
		Timestamp:   t.now(),
		Type:        eventType,
		Description: description,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode timeline event: %w", err)
	}

	if err := t.redis.LPushCapped(ctx, t.key, MaxEvents, string(payload)); err != nil {
		return fmt.Errorf("failed to append timeline event: %w", err)
	}

	t.logger.Debug("Timeline event recorded", "type", eventType, "description", description)
	t.notify(ctx)
	return nil
}

// Events returns the log, newest first. Undecodable entries are skipped.
func (t *Timeline) Events(ctx context.Context) ([]Event, error) {
	raw, err := t.redis.LRange(ctx, t.key, 0, MaxEvents-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for _, entry := range raw {
		var e Event
		if err := json.Unmarshal([]byte(entry), &e); err != nil {
			t.logger.Warn("Skipping malformed timeline entry", "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Clear empties the log
func (t *Timeline) Clear(ctx context.Context) error {
	if err := t.redis.Del(ctx, t.key); err != nil {
		return fmt.Errorf("failed to clear timeline: %w", err)
	}
	t.notify(ctx)
	return nil
}

// Subscribe returns a channel that receives the current log after every
// change. Delivery is latest-value-wins: a slow reader only sees the newest
// snapshot. The channel is closed when ctx is done.
func (t *Timeline) Subscribe(ctx context.Context) <-chan []Event {
	ch := make(chan []Event, 1)

	t.mu.Lock()
	t.observers = append(t.observers, ch)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, o := range t.observers {
			if o == ch {
				t.observers = append(t.observers[:i], t.observers[i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch
}

func (t *Timeline) notify(ctx context.Context) {
	t.mu.Lock()
	hasObservers := len(t.observers) > 0
	t.mu.Unlock()
	if !hasObservers {
		return
	}

	snapshot, err := t.Events(ctx)
	if err != nil {
		t.logger.Warn("Failed to read timeline for observers", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.observers {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
