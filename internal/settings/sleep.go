package settings

import (
	"fmt"
	"time"
)

// ClockTime is a time of day in minutes since midnight
type ClockTime int

// ParseClockTime parses "HH:MM" (24h)
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q (expected HH:MM): %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// String formats as "HH:MM"
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// ClockTimeOf returns the time of day of t in t's location
func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// SleepWindow is a daily time range. Start > End wraps past midnight; the
// start minute is inside, the end minute is outside. Start == End is empty.
type SleepWindow struct {
	Start ClockTime
	End   ClockTime
}

// ParseSleepWindow parses a start/end pair of "HH:MM" strings
func ParseSleepWindow(start, end string) (SleepWindow, error) {
	s, err := ParseClockTime(start)
	if err != nil {
		return SleepWindow{}, err
	}
	e, err := ParseClockTime(end)
	if err != nil {
		return SleepWindow{}, err
	}
	return SleepWindow{Start: s, End: e}, nil
}

// Contains reports whether the time of day c falls inside the window
func (w SleepWindow) Contains(c ClockTime) bool {
	switch {
	case w.Start == w.End:
		return false
	case w.Start < w.End:
		return c >= w.Start && c < w.End
	default:
		return c >= w.Start || c < w.End
	}
}

// ContainsTime reports whether t falls inside the window
func (w SleepWindow) ContainsTime(t time.Time) bool {
	return w.Contains(ClockTimeOf(t))
}
