package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout shared by the handset bridge and the agents.
// Every topic is scoped by device: sahay/{area}/{device}/...
const (
	TopicRoot = "sahay"

	// Wearable (BLE bridge) events, payload "FALL_DETECTED" or JSON
	TopicWearableEvents = "sahay/wearable/+/event"

	// Handset activity signals
	TopicActivityTouch  = "sahay/activity/+/touch"
	TopicActivityMotion = "sahay/activity/+/motion"

	// Emergency broadcast, latest value wins
	TopicEmergencyAll = "sahay/emergency/+"
)

// WearableEventTopic returns the topic a wearable bridge publishes on.
// Pattern: sahay/wearable/{device}/event
func WearableEventTopic(device string) string {
	return fmt.Sprintf("sahay/wearable/%s/event", device)
}

// ActivityTopic returns the activity topic for a signal ("touch" or "motion").
// Pattern: sahay/activity/{device}/{signal}
func ActivityTopic(device, signal string) string {
	return fmt.Sprintf("sahay/activity/%s/%s", device, signal)
}

// EmergencyTopic returns the emergency broadcast topic for a device.
// Pattern: sahay/emergency/{device}
func EmergencyTopic(device string) string {
	return fmt.Sprintf("sahay/emergency/%s", device)
}

// AutomationStatusTopic returns the automation progress topic.
// Pattern: sahay/automation/{device}/status
func AutomationStatusTopic(device string) string {
	return fmt.Sprintf("sahay/automation/%s/status", device)
}

// AutomationRequestTopic returns the topic flow-run requests arrive on.
// Pattern: sahay/automation/{device}/request
func AutomationRequestTopic(device string) string {
	return fmt.Sprintf("sahay/automation/%s/request", device)
}

// FallStatusTopic carries the countdown state for the handset UI.
// Pattern: sahay/fall/{device}/status
func FallStatusTopic(device string) string {
	return fmt.Sprintf("sahay/fall/%s/status", device)
}

// FallDismissTopic is where the handset reports "I'm OK" during a countdown.
// Pattern: sahay/fall/{device}/dismiss
func FallDismissTopic(device string) string {
	return fmt.Sprintf("sahay/fall/%s/dismiss", device)
}

// TimelineTopic carries the retained safety timeline snapshot for caregivers.
// Pattern: sahay/timeline/{device}
func TimelineTopic(device string) string {
	return fmt.Sprintf("sahay/timeline/%s", device)
}

// VoiceTranscriptTopic carries free-form utterances for emergency classification.
// Pattern: sahay/voice/{device}/transcript
func VoiceTranscriptTopic(device string) string {
	return fmt.Sprintf("sahay/voice/%s/transcript", device)
}

// DeviceCommandTopic returns the topic the handset listens on for a capability.
// Pattern: sahay/device/{device}/{capability}/command
func DeviceCommandTopic(device, capability string) string {
	return fmt.Sprintf("sahay/device/%s/%s/command", device, capability)
}

// DeviceEventTopic returns the topic the handset reports a capability's events on.
// Pattern: sahay/device/{device}/{capability}/event
func DeviceEventTopic(device, capability string) string {
	return fmt.Sprintf("sahay/device/%s/%s/event", device, capability)
}

// DeviceFromTopic extracts the device segment: sahay/{area}/{device}/...
func DeviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != TopicRoot || parts[2] == "" {
		return "", fmt.Errorf("invalid topic format: %s (expected sahay/{area}/{device}/...)", topic)
	}
	return parts[2], nil
}

// SOSRequestTopic carries explicit SOS presses from the handset.
// Pattern: sahay/sos/{device}/request
func SOSRequestTopic(device string) string {
	return fmt.Sprintf("sahay/sos/%s/request", device)
}

// MonitoringControlTopic toggles safety monitoring, payload "on" or "off".
// Pattern: sahay/monitoring/{device}/set
func MonitoringControlTopic(device string) string {
	return fmt.Sprintf("sahay/monitoring/%s/set", device)
}
