// Package settings persists the user-facing inactivity monitoring state.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saaga0h/sahay-platform/pkg/redis"
)

// Threshold bounds and defaults
const (
	MinThresholdSeconds     = 10
	MaxThresholdSeconds     = 7200
	DefaultThresholdSeconds = 30

	DefaultSleepStart = "22:00"
	DefaultSleepEnd   = "06:00"
)

// Hash fields of the persisted state
const (
	FieldMonitoringEnabled = "monitoring_enabled"
	FieldThresholdSeconds  = "threshold_seconds"
	FieldLastTouch         = "last_touch"
	FieldLastMotion        = "last_motion"
	FieldLastActivity      = "last_activity"
	FieldVoiceConfirmation = "voice_confirmation_enabled"
	FieldSleepModeEnabled  = "sleep_mode_enabled"
	FieldSleepStart        = "sleep_start"
	FieldSleepEnd          = "sleep_end"
	FieldServiceRunning    = "service_running"
)

// InactivityState is a snapshot of the persisted record
type InactivityState struct {
	MonitoringEnabled        bool
	ThresholdSeconds         int
	LastTouch                time.Time
	LastMotion               time.Time
	LastActivity             time.Time
	VoiceConfirmationEnabled bool
	SleepModeEnabled         bool
	SleepStart               string
	SleepEnd                 string
	ServiceRunning           bool
}

// ClampThreshold forces seconds into [MinThresholdSeconds, MaxThresholdSeconds]
func ClampThreshold(seconds int) int {
	if seconds < MinThresholdSeconds {
		return MinThresholdSeconds
	}
	if seconds > MaxThresholdSeconds {
		return MaxThresholdSeconds
	}
	return seconds
}

// Store reads and writes InactivityState fields in a Redis hash. Each field
// is independent; a missing field reads as its default.
type Store struct {
	redis  redis.Client
	key    string
	logger *slog.Logger
}

// NewStore creates a store for one device
func NewStore(client redis.Client, device string, logger *slog.Logger) *Store {
	return &Store{
		redis:  client,
		key:    redis.InactivitySettingsKey(device),
		logger: logger,
	}
}

// Load reads the whole record
func (s *Store) Load(ctx context.Context) (InactivityState, error) {
	fields, err := s.redis.HGetAll(ctx, s.key)
	if err != nil {
		return InactivityState{}, fmt.Errorf("failed to load inactivity state: %w", err)
	}

	return InactivityState{
		MonitoringEnabled:        parseBool(fields[FieldMonitoringEnabled], false),
		ThresholdSeconds:         ClampThreshold(parseInt(fields[FieldThresholdSeconds], DefaultThresholdSeconds)),
		LastTouch:                parseMillis(fields[FieldLastTouch]),
		LastMotion:               parseMillis(fields[FieldLastMotion]),
		LastActivity:             parseMillis(fields[FieldLastActivity]),
		VoiceConfirmationEnabled: parseBool(fields[FieldVoiceConfirmation], true),
		SleepModeEnabled:         parseBool(fields[FieldSleepModeEnabled], false),
		SleepStart:               stringOr(fields[FieldSleepStart], DefaultSleepStart),
		SleepEnd:                 stringOr(fields[FieldSleepEnd], DefaultSleepEnd),
		ServiceRunning:           parseBool(fields[FieldServiceRunning], false),
	}, nil
}

// Threshold returns the clamped threshold in seconds
func (s *Store) Threshold(ctx context.Context) (int, error) {
	v, err := s.get(ctx, FieldThresholdSeconds)
	if err != nil {
		return DefaultThresholdSeconds, err
	}
	return ClampThreshold(parseInt(v, DefaultThresholdSeconds)), nil
}

// SetThreshold clamps and stores the threshold. It returns the stored value.
func (s *Store) SetThreshold(ctx context.Context, seconds int) (int, error) {
	clamped := ClampThreshold(seconds)
	if clamped != seconds {
		s.logger.Debug("Clamped inactivity threshold", "requested", seconds, "stored", clamped)
	}
	return clamped, s.set(ctx, FieldThresholdSeconds, clamped)
}

// MonitoringEnabled reports whether the user has switched monitoring on
func (s *Store) MonitoringEnabled(ctx context.Context) (bool, error) {
	return s.getBool(ctx, FieldMonitoringEnabled, false)
}

// SetMonitoringEnabled stores the monitoring toggle
func (s *Store) SetMonitoringEnabled(ctx context.Context, enabled bool) error {
	return s.set(ctx, FieldMonitoringEnabled, enabled)
}

// VoiceConfirmationEnabled reports whether inactivity alerts ask first
func (s *Store) VoiceConfirmationEnabled(ctx context.Context) (bool, error) {
	return s.getBool(ctx, FieldVoiceConfirmation, true)
}

// SetVoiceConfirmationEnabled stores the voice confirmation toggle
func (s *Store) SetVoiceConfirmationEnabled(ctx context.Context, enabled bool) error {
	return s.set(ctx, FieldVoiceConfirmation, enabled)
}

// ServiceRunning reports the last recorded liveness of the monitoring service
func (s *Store) ServiceRunning(ctx context.Context) (bool, error) {
	return s.getBool(ctx, FieldServiceRunning, false)
}

// SetServiceRunning records monitoring service liveness
func (s *Store) SetServiceRunning(ctx context.Context, running bool) error {
	return s.set(ctx, FieldServiceRunning, running)
}

// SetSleepMode stores the sleep toggle and window. The window is validated first.
func (s *Store) SetSleepMode(ctx context.Context, enabled bool, start, end string) error {
	if _, err := ParseSleepWindow(start, end); err != nil {
		return err
	}
	if err := s.set(ctx, FieldSleepModeEnabled, enabled); err != nil {
		return err
	}
	if err := s.set(ctx, FieldSleepStart, start); err != nil {
		return err
	}
	return s.set(ctx, FieldSleepEnd, end)
}

// InSleepWindow reports whether sleep mode is enabled and now is inside the window.
// An unparseable stored window is treated as no window.
func (s *Store) InSleepWindow(ctx context.Context, now time.Time) (bool, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	if !state.SleepModeEnabled {
		return false, nil
	}
	window, err := ParseSleepWindow(state.SleepStart, state.SleepEnd)
	if err != nil {
		s.logger.Warn("Ignoring invalid sleep window", "start", state.SleepStart, "end", state.SleepEnd, "error", err)
		return false, nil
	}
	return window.ContainsTime(now), nil
}

// RecordTouch stores the touch and activity timestamps
func (s *Store) RecordTouch(ctx context.Context, at time.Time) error {
	if err := s.set(ctx, FieldLastTouch, at.UnixMilli()); err != nil {
		return err
	}
	return s.set(ctx, FieldLastActivity, at.UnixMilli())
}

// RecordMotion stores the motion and activity timestamps
func (s *Store) RecordMotion(ctx context.Context, at time.Time) error {
	if err := s.set(ctx, FieldLastMotion, at.UnixMilli()); err != nil {
		return err
	}
	return s.set(ctx, FieldLastActivity, at.UnixMilli())
}

// ResetActivity stamps touch, motion and activity with the same instant
func (s *Store) ResetActivity(ctx context.Context, at time.Time) error {
	for _, field := range []string{FieldLastTouch, FieldLastMotion, FieldLastActivity} {
		if err := s.set(ctx, field, at.UnixMilli()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) set(ctx context.Context, field string, value interface{}) error {
	if err := s.redis.HSet(ctx, s.key, field, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", field, err)
	}
	return nil
}

// get returns "" without error for a missing field
func (s *Store) get(ctx context.Context, field string) (string, error) {
	v, err := s.redis.HGet(ctx, s.key, field)
	if errors.Is(err, redis.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", field, err)
	}
	return v, nil
}

func (s *Store) getBool(ctx context.Context, field string, def bool) (bool, error) {
	v, err := s.get(ctx, field)
	if err != nil {
		return def, err
	}
	return parseBool(v, def), nil
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
