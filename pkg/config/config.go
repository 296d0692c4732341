package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Contact is an emergency contact as configured for the agent
type Contact struct {
	Name  string
	Phone string
}

// Config holds the configuration for a SAHAY agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Postgres configuration (fall event history)
	PostgresHost               string
	PostgresPort               int
	PostgresUser               string
	PostgresPassword           string
	PostgresDB                 string
	PostgresSSLMode            string
	PostgresMaxConnections     int
	PostgresMaxIdleConnections int
	PostgresConnMaxLifetime    time.Duration

	// Local SQLite fallback for fall event history (used when PostgresHost is empty)
	SQLitePath string

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string
	DeviceID    string

	// Twilio configuration
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	TwilioWhatsAppFrom string

	// Remote emergency classifier
	LLMEndpoint         string
	LLMModel            string
	ClassifierTimeoutMs int
	TriggerThreshold    int

	// Safety configuration
	CountryCode        string
	EmergencyNumber    string
	Contacts           []Contact
	WatchdogInterval   time.Duration
	VoiceListenTimeout time.Duration

	// Automation configuration
	FlowConfigPath string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:                 "localhost",
		MQTTPort:                   1883,
		RedisHost:                  "localhost",
		RedisPort:                  6379,
		RedisDB:                    0,
		PostgresHost:               "",
		PostgresPort:               5432,
		PostgresUser:               "sahay",
		PostgresDB:                 "sahay",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 2,
		PostgresConnMaxLifetime:    30 * time.Minute,
		SQLitePath:                 "data/sahay.db",
		ServiceName:                "sahay-agent",
		HealthPort:                 8080,
		LogLevel:                   "info",
		DeviceID:                   "default",
		LLMEndpoint:                "",
		LLMModel:                   "llama3.2:3b",
		ClassifierTimeoutMs:        3000,
		TriggerThreshold:           70,
		CountryCode:                "IN",
		WatchdogInterval:           15 * time.Minute,
		VoiceListenTimeout:         15 * time.Second,
		FlowConfigPath:             "configs/flows.yaml",
	}
}

// LoadFromEnv loads configuration from environment variables with SAHAY_ prefix.
// A .env file in the working directory is read first if present.
func (c *Config) LoadFromEnv() {
	// Missing .env is the normal case in deployment
	_ = godotenv.Load()

	// MQTT configuration
	if v := os.Getenv("SAHAY_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("SAHAY_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("SAHAY_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("SAHAY_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("SAHAY_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("SAHAY_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("SAHAY_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("SAHAY_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("SAHAY_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Postgres configuration
	if v := os.Getenv("SAHAY_POSTGRES_HOST"); v != "" {
		c.PostgresHost = v
	}
	if v := os.Getenv("SAHAY_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.PostgresPort = port
		}
	}
	if v := os.Getenv("SAHAY_POSTGRES_USER"); v != "" {
		c.PostgresUser = v
	}
	if v := os.Getenv("SAHAY_POSTGRES_PASSWORD"); v != "" {
		c.PostgresPassword = v
	}
	if v := os.Getenv("SAHAY_POSTGRES_DB"); v != "" {
		c.PostgresDB = v
	}
	if v := os.Getenv("SAHAY_POSTGRES_SSLMODE"); v != "" {
		c.PostgresSSLMode = v
	}
	if v := os.Getenv("SAHAY_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}

	// Service configuration
	if v := os.Getenv("SAHAY_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("SAHAY_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("SAHAY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SAHAY_DEVICE_ID"); v != "" {
		c.DeviceID = v
	}

	// Twilio configuration (unprefixed names are what the Twilio tooling exports)
	c.TwilioAccountSID = firstEnv("SAHAY_TWILIO_ACCOUNT_SID", "TWILIO_ACCOUNT_SID", c.TwilioAccountSID)
	c.TwilioAuthToken = firstEnv("SAHAY_TWILIO_AUTH_TOKEN", "TWILIO_AUTH_TOKEN", c.TwilioAuthToken)
	c.TwilioFromNumber = firstEnv("SAHAY_TWILIO_FROM_NUMBER", "TWILIO_FROM_NUMBER", c.TwilioFromNumber)
	if v := os.Getenv("SAHAY_TWILIO_WHATSAPP_FROM"); v != "" {
		c.TwilioWhatsAppFrom = v
	}

	// Classifier configuration
	if v := os.Getenv("SAHAY_LLM_ENDPOINT"); v != "" {
		c.LLMEndpoint = v
	}
	if v := os.Getenv("SAHAY_LLM_MODEL"); v != "" {
		c.LLMModel = v
	}
	if v := os.Getenv("SAHAY_CLASSIFIER_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.ClassifierTimeoutMs = ms
		}
	}
	if v := os.Getenv("SAHAY_TRIGGER_THRESHOLD"); v != "" {
		if th, err := strconv.Atoi(v); err == nil {
			c.TriggerThreshold = th
		}
	}

	// Safety configuration
	if v := os.Getenv("SAHAY_COUNTRY_CODE"); v != "" {
		c.CountryCode = v
	}
	if v := os.Getenv("SAHAY_EMERGENCY_NUMBER"); v != "" {
		c.EmergencyNumber = v
	}
	if v := os.Getenv("SAHAY_CONTACTS"); v != "" {
		c.Contacts = ParseContacts(v)
	}
	if v := os.Getenv("SAHAY_WATCHDOG_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WatchdogInterval = d
		}
	}
	if v := os.Getenv("SAHAY_VOICE_LISTEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.VoiceListenTimeout = d
		}
	}
	if v := os.Getenv("SAHAY_FLOW_CONFIG_PATH"); v != "" {
		c.FlowConfigPath = v
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	var contacts string

	// MQTT flags
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Storage flags
	pflag.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname (empty uses SQLite)")
	pflag.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	pflag.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database name")
	pflag.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "SQLite database file for local fall history")

	// Service flags
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	pflag.StringVar(&c.DeviceID, "device-id", c.DeviceID, "Handset device ID used in MQTT topics")

	// Classifier flags
	pflag.StringVar(&c.LLMEndpoint, "llm-endpoint", c.LLMEndpoint, "LLM base URL for remote classification (empty disables)")
	pflag.StringVar(&c.LLMModel, "llm-model", c.LLMModel, "LLM model name")
	pflag.IntVar(&c.ClassifierTimeoutMs, "classifier-timeout-ms", c.ClassifierTimeoutMs, "Remote classifier timeout in milliseconds")
	pflag.IntVar(&c.TriggerThreshold, "trigger-threshold", c.TriggerThreshold, "Minimum confidence for an emergency trigger")

	// Safety flags
	pflag.StringVar(&c.CountryCode, "country-code", c.CountryCode, "ISO country code used to pick the emergency number")
	pflag.StringVar(&c.EmergencyNumber, "emergency-number", c.EmergencyNumber, "Emergency number override")
	pflag.StringVar(&contacts, "contacts", "", "Emergency contacts as name:phone,name:phone")
	pflag.DurationVar(&c.WatchdogInterval, "watchdog-interval", c.WatchdogInterval, "Monitoring watchdog interval")
	pflag.DurationVar(&c.VoiceListenTimeout, "voice-listen-timeout", c.VoiceListenTimeout, "How long the voice safety check listens for an answer")

	// Automation flags
	pflag.StringVar(&c.FlowConfigPath, "flow-config", c.FlowConfigPath, "Path to the automation flow configuration document")

	pflag.Parse()

	if contacts != "" {
		c.Contacts = ParseContacts(contacts)
	}
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("Device ID is required")
	}
	if c.ClassifierTimeoutMs <= 0 {
		return fmt.Errorf("classifier timeout must be positive")
	}
	if c.TriggerThreshold < 0 || c.TriggerThreshold > 100 {
		return fmt.Errorf("trigger threshold must be between 0 and 100")
	}
	if c.VoiceListenTimeout <= 0 {
		return fmt.Errorf("voice listen timeout must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns the lib/pq connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// ClassifierTimeout returns the remote classifier budget as a duration
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutMs) * time.Millisecond
}

// ParseContacts parses "name:phone,name:phone". Entries without a name use the phone.
func ParseContacts(s string) []Contact {
	var contacts []Contact
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, phone, found := strings.Cut(entry, ":")
		if !found {
			phone = name
		}
		contacts = append(contacts, Contact{
			Name:  strings.TrimSpace(name),
			Phone: strings.TrimSpace(phone),
		})
	}
	return contacts
}

func firstEnv(primary, secondary, fallback string) string {
	if v := os.Getenv(primary); v != "" {
		return v
	}
	if v := os.Getenv(secondary); v != "" {
		return v
	}
	return fallback
}
