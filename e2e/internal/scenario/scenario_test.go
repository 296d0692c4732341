package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sosScenario = `
name: sos
description: explicit SOS escalates
device: phone-1
events:
  - time: 0
    kind: sos
    description: press SOS
expectations:
  - time: 2
    layer: emergency
    topic: sahay/emergency/{device}
    payload:
      source: user
  - time: 2
    layer: timeline
    redis_key: timeline
    payload:
      type: sos_triggered
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(sosScenario))
	require.NoError(t, err)

	assert.Equal(t, "phone-1", s.Device)
	require.Len(t, s.Events, 1)
	topic, err := s.Events[0].ResolveTopic(s.Device)
	require.NoError(t, err)
	assert.Equal(t, "sahay/sos/phone-1/request", topic)

	require.Len(t, s.Expectations, 2)
	assert.Equal(t, "user", s.Expectations[0].Payload["source"])
	assert.Equal(t, "sahay/emergency/phone-1", Expand(s.Expectations[0].Topic, s.Device))
	assert.Equal(t, "timeline:safety:phone-1", ResolveRedisKey(s.Expectations[1].RedisKey, s.Device))
}

func TestParseScenarioDefaultsDevice(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: touch
description: touch resets inactivity
events:
  - time: 0
    kind: touch
    payload: tap
    description: tap
expectations:
  - time: 1
    layer: settings
    redis_key: settings
    redis_field: last_touch
    expected: "~[0-9]+~"
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultDevice, s.Device)
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "n",
			Description: "d",
			Device:      "dev",
			Events:      []Event{{Kind: KindTouch, Payload: "tap", Description: "tap"}},
			Expectations: []Expectation{{
				Layer: "mqtt", Topic: "sahay/fall/{device}/status",
				Payload: map[string]interface{}{"state": "idle"},
			}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no events", func(s *Scenario) { s.Events = nil }, "at least one event"},
		{"unknown kind", func(s *Scenario) { s.Events[0].Kind = "doorbell" }, "unknown event kind"},
		{"raw without topic", func(s *Scenario) { s.Events[0].Kind = KindRaw }, "raw event requires topic"},
		{"topic on typed event", func(s *Scenario) { s.Events[0].Topic = "x" }, "only allowed for raw"},
		{"missing payload", func(s *Scenario) { s.Events[0].Payload = nil }, "require payload"},
		{"sos needs no payload", func(s *Scenario) {
			s.Events[0].Kind = KindSOS
			s.Events[0].Payload = nil
		}, ""},
		{"negative time", func(s *Scenario) { s.Events[0].Time = -1 }, "time cannot be negative"},
		{"no expectations", func(s *Scenario) { s.Expectations = nil }, "at least one expectation"},
		{"two targets", func(s *Scenario) { s.Expectations[0].RedisKey = "settings" }, "exactly one of"},
		{"no target", func(s *Scenario) { s.Expectations[0].Topic = "" }, "exactly one of"},
		{"missing layer", func(s *Scenario) { s.Expectations[0].Layer = "" }, "layer is required"},
		{"hash without expected", func(s *Scenario) {
			s.Expectations[0] = Expectation{Layer: "redis", RedisKey: "settings", RedisField: "last_touch"}
		}, "expected is required"},
		{"list without payload", func(s *Scenario) {
			s.Expectations[0] = Expectation{Layer: "redis", RedisKey: "timeline"}
		}, "list expectations require payload"},
		{"postgres without expected", func(s *Scenario) {
			s.Expectations[0] = Expectation{Layer: "db", PostgresQuery: "SELECT 1"}
		}, "postgres_expected is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := ValidateScenario(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
