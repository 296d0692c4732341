package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/saaga0h/sahay-platform/pkg/config"
)

const (
	disconnectQuiesceMs = 250
	operationTimeout    = 10 * time.Second
)

type subscription struct {
	qos     byte
	handler pahomqtt.MessageHandler
}

// mqttClient is a paho-backed Client. With a clean session the broker drops
// subscriptions on reconnect, so they are tracked here and replayed.
type mqttClient struct {
	client pahomqtt.Client
	broker string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewClient creates an MQTT client. The agent announces itself on
// sahay/agents/{service}/status as "online", with "offline" as its will.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	m := &mqttClient{
		broker: cfg.MQTTAddress(),
		logger: logger,
		subs:   make(map[string]subscription),
	}

	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%s-%d", cfg.ServiceName, cfg.DeviceID, time.Now().Unix())
	}
	statusTopic := fmt.Sprintf("%s/agents/%s/status", TopicRoot, cfg.ServiceName)

	opts := pahomqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(clientID).
		SetUsername(cfg.MQTTUser).
		SetPassword(cfg.MQTTPassword).
		// Stale safety events must never be replayed after a reconnect
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(30*time.Second).
		SetWill(statusTopic, "offline", 1, true)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", "broker", m.broker)
		c.Publish(statusTopic, 1, true, "online")
		go m.resubscribe()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		logger.Info("MQTT reconnecting", "broker", m.broker)
	})

	m.client = pahomqtt.NewClient(opts)
	return m
}

// await waits for a token, bounded by ctx
func await(ctx context.Context, t pahomqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mqttClient) op(t pahomqtt.Token) error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	return await(ctx, t)
}

func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Info("Connecting to MQTT broker", "broker", m.broker)
	if err := await(ctx, m.client.Connect()); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", m.broker, err)
	}
	return nil
}

func (m *mqttClient) Disconnect() {
	m.logger.Info("Disconnecting from MQTT broker", "broker", m.broker)
	m.client.Disconnect(disconnectQuiesceMs)
}

func (m *mqttClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	sub := subscription{
		qos: qos,
		handler: func(_ pahomqtt.Client, msg pahomqtt.Message) {
			handler(&mqttMessage{msg: msg})
		},
	}

	m.mu.Lock()
	m.subs[topic] = sub
	m.mu.Unlock()

	if err := m.op(m.client.Subscribe(topic, qos, sub.handler)); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	m.logger.Info("Subscribed to MQTT topic", "topic", topic, "qos", qos)
	return nil
}

func (m *mqttClient) resubscribe() {
	m.mu.Lock()
	subs := make(map[string]subscription, len(m.subs))
	for topic, sub := range m.subs {
		subs[topic] = sub
	}
	m.mu.Unlock()

	for topic, sub := range subs {
		if err := m.op(m.client.Subscribe(topic, sub.qos, sub.handler)); err != nil {
			m.logger.Error("Failed to restore MQTT subscription", "topic", topic, "error", err)
		}
	}
}

func (m *mqttClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	delete(m.subs, topic)
	m.mu.Unlock()

	if err := m.op(m.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, err)
	}
	m.logger.Debug("Unsubscribed from topic", "topic", topic)
	return nil
}

func (m *mqttClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if err := m.op(m.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	m.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}

type mqttMessage struct {
	msg pahomqtt.Message
}

func (m *mqttMessage) Topic() string   { return m.msg.Topic() }
func (m *mqttMessage) Payload() []byte { return m.msg.Payload() }
func (m *mqttMessage) Ack()            { m.msg.Ack() }
