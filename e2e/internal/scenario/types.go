package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/saaga0h/sahay-platform/pkg/mqtt"
	"github.com/saaga0h/sahay-platform/pkg/redis"
)

// EventKind names the handset or wearable signal an event simulates
type EventKind string

const (
	KindWearable   EventKind = "wearable"
	KindTouch      EventKind = "touch"
	KindMotion     EventKind = "motion"
	KindTranscript EventKind = "transcript"
	KindSOS        EventKind = "sos"
	KindDismiss    EventKind = "dismiss"
	KindMonitoring EventKind = "monitoring"
	KindAutomation EventKind = "automation"
	// KindRaw publishes Payload to an arbitrary Topic
	KindRaw EventKind = "raw"
)

// Scenario is one end-to-end run against live agents
type Scenario struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	Device       string        `yaml:"device"`
	StartupDelay int           `yaml:"startup_delay"` // seconds before the first event
	Events       []Event       `yaml:"events"`
	Expectations []Expectation `yaml:"expectations"`
}

// Event is a message published at Time seconds after the scenario starts
type Event struct {
	Time        int         `yaml:"time"`
	Kind        EventKind   `yaml:"kind"`
	Topic       string      `yaml:"topic,omitempty"` // only for raw events
	Payload     interface{} `yaml:"payload"`
	Retained    bool        `yaml:"retained,omitempty"`
	Description string      `yaml:"description"`
}

// Expectation is checked at Time seconds. Exactly one of Topic, RedisKey or
// PostgresQuery selects what is checked. Topics and keys may contain
// {device}, which is replaced with the scenario device.
type Expectation struct {
	Time  int    `yaml:"time"`
	Layer string `yaml:"layer"`

	// Latest MQTT message on Topic must match Payload
	Topic   string                 `yaml:"topic,omitempty"`
	Payload map[string]interface{} `yaml:"payload,omitempty"`

	// RedisKey accepts the aliases "settings" and "timeline". With RedisField
	// set the hash field must match Expected; without it the newest list entry
	// must match Payload.
	RedisKey   string      `yaml:"redis_key,omitempty"`
	RedisField string      `yaml:"redis_field,omitempty"`
	Expected   interface{} `yaml:"expected,omitempty"`

	PostgresQuery    string      `yaml:"postgres_query,omitempty"`
	PostgresExpected interface{} `yaml:"postgres_expected,omitempty"`
}

// Target is a short description of what the expectation inspects
func (e Expectation) Target() string {
	switch {
	case e.Topic != "":
		return e.Topic
	case e.RedisKey != "" && e.RedisField != "":
		return e.RedisKey + "." + e.RedisField
	case e.RedisKey != "":
		return e.RedisKey + "[0]"
	default:
		return "postgres query"
	}
}

// ResolveTopic returns the MQTT topic an event is published on
func (e Event) ResolveTopic(device string) (string, error) {
	switch e.Kind {
	case KindWearable:
		return mqtt.WearableEventTopic(device), nil
	case KindTouch:
		return mqtt.ActivityTopic(device, "touch"), nil
	case KindMotion:
		return mqtt.ActivityTopic(device, "motion"), nil
	case KindTranscript:
		return mqtt.VoiceTranscriptTopic(device), nil
	case KindSOS:
		return mqtt.SOSRequestTopic(device), nil
	case KindDismiss:
		return mqtt.FallDismissTopic(device), nil
	case KindMonitoring:
		return mqtt.MonitoringControlTopic(device), nil
	case KindAutomation:
		return mqtt.AutomationRequestTopic(device), nil
	case KindRaw:
		if e.Topic == "" {
			return "", fmt.Errorf("raw event requires topic")
		}
		return Expand(e.Topic, device), nil
	default:
		return "", fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// Expand substitutes {device} in a topic or key
func Expand(s, device string) string {
	return strings.ReplaceAll(s, "{device}", device)
}

// ResolveRedisKey maps the settings and timeline aliases to their keys
func ResolveRedisKey(key, device string) string {
	switch key {
	case "settings":
		return redis.InactivitySettingsKey(device)
	case "timeline":
		return redis.SafetyTimelineKey(device)
	default:
		return Expand(key, device)
	}
}

// TestResult is the outcome of one scenario run
type TestResult struct {
	Scenario     *Scenario           `json:"scenario"`
	StartTime    time.Time           `json:"start_time"`
	EndTime      time.Time           `json:"end_time"`
	Passed       bool                `json:"passed"`
	PassedCount  int                 `json:"passed_count"`
	FailedCount  int                 `json:"failed_count"`
	Expectations []ExpectationResult `json:"expectations"`
}

// ExpectationResult is the outcome of one check
type ExpectationResult struct {
	Layer       string      `json:"layer"`
	Expectation Expectation `json:"expectation"`
	Passed      bool        `json:"passed"`
	Reason      string      `json:"reason,omitempty"`
	Actual      interface{} `json:"actual,omitempty"`
}
