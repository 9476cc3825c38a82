package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// EventPublisher pushes domain events onto the broker. With an empty URI it
// runs disabled and every publish is a logged no-op, so the service stays up
// without a broker.
type EventPublisher struct {
	rabbitMQ *RabbitMQClient
	enabled  bool
}

func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{
			rabbitMQ: nil,
			enabled:  false,
		}, nil
	}

	client, err := NewRabbitMQClient(rabbitURI)
	if err != nil {
		return nil, err
	}

	if err := client.setupExchanges(); err != nil {
		client.Close()
		return nil, err
	}

	return &EventPublisher{
		rabbitMQ: client,
		enabled:  true,
	}, nil
}

// Publish routes the event to its exchange by routing key prefix:
// permission.* and rule.* go to permission-events, everything else to
// sharing-events.
func (p *EventPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if !p.enabled {
		log.Printf("Event publishing is disabled, skipping %s", routingKey)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", routingKey, err)
	}

	exchange := "sharing-events"
	if strings.HasPrefix(routingKey, "permission.") || strings.HasPrefix(routingKey, "rule.") {
		exchange = "permission-events"
	}

	if err := p.rabbitMQ.PublishEvent(exchange, routingKey, body); err != nil {
		return err
	}

	log.Printf("Published %s event to %s", routingKey, exchange)
	return nil
}

func (p *EventPublisher) Close() error {
	if !p.enabled || p.rabbitMQ == nil {
		return nil
	}

	return p.rabbitMQ.Close()
}
