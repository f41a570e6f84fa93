package controlplane

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher emits control commands onto the command topic. The HTTP admin
// endpoints use it so that channel and spambot changes take the same path
// whether they originate here or in the fleet-management layer.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

// NewPublisher wraps a Watermill publisher for the given topic.
func NewPublisher(publisher message.Publisher, topic string) *Publisher {
	return &Publisher{publisher: publisher, topic: topic}
}

// Publish serializes and sends a single command.
func (p *Publisher) Publish(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := p.publisher.Publish(p.topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("publish %s: %w", cmd.Type, err)
	}
	return nil
}
