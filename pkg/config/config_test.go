package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaultsValidate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTAddress())
	assert.Equal(t, "localhost:6379", cfg.RedisAddress())
	assert.Equal(t, 3*time.Second, cfg.ClassifierTimeout())
	assert.Empty(t, cfg.PostgresHost, "SQLite is the default fall store")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SAHAY_MQTT_BROKER", "broker.lan")
	t.Setenv("SAHAY_MQTT_PORT", "8883")
	t.Setenv("SAHAY_REDIS_PORT", "not-a-number")
	t.Setenv("SAHAY_DEVICE_ID", "amma-phone")
	t.Setenv("SAHAY_CONTACTS", "Ravi:+91 98000 00001, Meera:+919800000002")
	t.Setenv("SAHAY_WATCHDOG_INTERVAL", "5m")
	t.Setenv("SAHAY_VOICE_LISTEN_TIMEOUT", "20s")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("SAHAY_TWILIO_AUTH_TOKEN", "secret")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "broker.lan", cfg.MQTTBroker)
	assert.Equal(t, 8883, cfg.MQTTPort)
	assert.Equal(t, 6379, cfg.RedisPort, "unparsable values keep the default")
	assert.Equal(t, "amma-phone", cfg.DeviceID)
	assert.Equal(t, 5*time.Minute, cfg.WatchdogInterval)
	assert.Equal(t, 20*time.Second, cfg.VoiceListenTimeout)
	assert.Equal(t, "AC123", cfg.TwilioAccountSID)
	assert.Equal(t, "secret", cfg.TwilioAuthToken)
	assert.Equal(t, []Contact{
		{Name: "Ravi", Phone: "+91 98000 00001"},
		{Name: "Meera", Phone: "+919800000002"},
	}, cfg.Contacts)
}

func TestPrefixedTwilioWins(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC-plain")
	t.Setenv("SAHAY_TWILIO_ACCOUNT_SID", "AC-prefixed")

	cfg := NewConfig()
	cfg.LoadFromEnv()
	assert.Equal(t, "AC-prefixed", cfg.TwilioAccountSID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no broker", func(c *Config) { c.MQTTBroker = "" }},
		{"bad mqtt port", func(c *Config) { c.MQTTPort = 70000 }},
		{"no redis", func(c *Config) { c.RedisHost = "" }},
		{"bad health port", func(c *Config) { c.HealthPort = 0 }},
		{"no device", func(c *Config) { c.DeviceID = "" }},
		{"bad classifier timeout", func(c *Config) { c.ClassifierTimeoutMs = 0 }},
		{"threshold too high", func(c *Config) { c.TriggerThreshold = 101 }},
		{"bad listen timeout", func(c *Config) { c.VoiceListenTimeout = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseContacts(t *testing.T) {
	tests := []struct {
		in   string
		want []Contact
	}{
		{"", nil},
		{"Ravi:+911234", []Contact{{Name: "Ravi", Phone: "+911234"}}},
		{"+911234", []Contact{{Name: "+911234", Phone: "+911234"}}},
		{" a:1 ,, b:2 ", []Contact{{Name: "a", Phone: "1"}, {Name: "b", Phone: "2"}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseContacts(tt.in), tt.in)
	}
}
