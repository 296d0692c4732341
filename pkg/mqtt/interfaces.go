package mqtt

import "context"

// Client is the broker connection shared by an agent's components
type Client interface {
	// Connect establishes a connection to the MQTT broker
	Connect(ctx context.Context) error

	// Disconnect closes the connection to the MQTT broker
	Disconnect()

	// Subscribe registers handler for topic (wildcards allowed)
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Unsubscribe removes a previous subscription
	Unsubscribe(topic string) error

	// Publish publishes a message to a topic
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected returns whether the client is currently connected
	IsConnected() bool
}

// MessageHandler is invoked for each message on a subscribed topic.
// Handlers run on the client's delivery goroutine and must not block.
type MessageHandler func(Message)

// Message is a single delivered MQTT message
type Message interface {
	Topic() string
	Payload() []byte
	Ack()
}
