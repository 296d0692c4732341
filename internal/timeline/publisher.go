package timeline

import (
	"context"
	"log/slog"

	"github.com/saaga0h/sahay-platform/pkg/mqtt"
)

// Publisher mirrors the timeline onto a retained MQTT topic so a caregiver
// dashboard always sees the latest snapshot on connect
type Publisher struct {
	timeline *Timeline
	client   mqtt.Client
	topic    string
	logger   *slog.Logger
}

// NewPublisher creates a publisher for the device's timeline topic
func NewPublisher(t *Timeline, client mqtt.Client, device string, logger *slog.Logger) *Publisher {
	return &Publisher{
		timeline: t,
		client:   client,
		topic:    mqtt.TimelineTopic(device),
		logger:   logger,
	}
}

// Start publishes the current log and then every change until ctx is done
func (p *Publisher) Start(ctx context.Context) error {
	updates := p.timeline.Subscribe(ctx)

	events, err := p.timeline.Events(ctx)
	if err != nil {
		p.logger.Warn("Failed to read timeline for initial snapshot", "error", err)
	} else {
		p.publish(events)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case events, ok := <-updates:
			if !ok {
				return nil
			}
			p.publish(events)
		}
	}
}

func (p *Publisher) publish(events []Event) {
	if events == nil {
		events = []Event{}
	}
	if err := mqtt.PublishJSON(p.client, p.topic, 1, true, events); err != nil {
		p.logger.Warn("Failed to publish timeline", "topic", p.topic, "error", err)
		return
	}
	p.logger.Debug("Timeline published", "topic", p.topic, "events", len(events))
}
