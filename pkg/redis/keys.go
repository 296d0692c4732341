package redis

import "fmt"

// Key construction helpers. All keys are scoped by device.

// InactivitySettingsKey returns the key for the persisted inactivity state (hash)
// Pattern: settings:inactivity:{device}
func InactivitySettingsKey(device string) string {
	return fmt.Sprintf("settings:inactivity:%s", device)
}

// SafetyTimelineKey returns the key for the safety timeline (list, newest first)
// Pattern: timeline:safety:{device}
func SafetyTimelineKey(device string) string {
	return fmt.Sprintf("timeline:safety:%s", device)
}
