package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// PrincipalInvalidator drops cached identity sets after a membership
// change upstream.
type PrincipalInvalidator interface {
	Invalidate(ctx context.Context, userID bson.ObjectID)
	InvalidateAll(ctx context.Context)
}

// EventConsumer listens to the directory services' membership events and
// invalidates cached principal contexts so stale memberships stop granting
// access within the cache TTL.
type EventConsumer struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queueName  string
	principals PrincipalInvalidator
	shutdown   chan struct{}
	wg         sync.WaitGroup
	enabled    bool
}

type ExchangeConfig struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Args       amqp091.Table
}

type BindingConfig struct {
	Exchange   string
	RoutingKey string
}

func NewEventConsumer(rabbitURI string, principals PrincipalInvalidator) (*EventConsumer, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event consumption is disabled")
		return &EventConsumer{
			principals: principals,
			shutdown:   make(chan struct{}),
			enabled:    false,
		}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &EventConsumer{
		conn:       conn,
		channel:    channel,
		queueName:  "permission-service-events",
		principals: principals,
		shutdown:   make(chan struct{}),
		enabled:    true,
	}, nil
}

func (c *EventConsumer) Start() error {
	if !c.enabled {
		log.Println("Event consumption is disabled, not starting consumer")
		return nil
	}

	exchanges := []ExchangeConfig{
		{Name: "team-events", Type: "topic", Durable: true},
		{Name: "user-events", Type: "topic", Durable: true},
		{Name: "org-events", Type: "topic", Durable: true},
	}

	for _, exchange := range exchanges {
		err := c.channel.ExchangeDeclare(
			exchange.Name,
			exchange.Type,
			exchange.Durable,
			exchange.AutoDelete,
			exchange.Internal,
			exchange.NoWait,
			exchange.Args,
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange.Name, err)
		}
		log.Printf("Declared exchange: %s", exchange.Name)
	}

	_, err := c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	log.Printf("Declared queue: %s", c.queueName)

	bindings := []BindingConfig{
		{Exchange: "team-events", RoutingKey: string(TeamMemberAdded)},
		{Exchange: "team-events", RoutingKey: string(TeamMemberRemoved)},
		{Exchange: "team-events", RoutingKey: string(TeamArchived)},
		{Exchange: "user-events", RoutingKey: string(UserRoleChanged)},
		{Exchange: "org-events", RoutingKey: string(OrgMemberChanged)},
	}

	for _, binding := range bindings {
		err := c.channel.QueueBind(
			c.queueName,
			binding.RoutingKey,
			binding.Exchange,
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue to exchange %s with key %s: %w",
				binding.Exchange, binding.RoutingKey, err)
		}
		log.Printf("Bound queue %s to exchange %s with routing key %s",
			c.queueName, binding.Exchange, binding.RoutingKey)
	}

	msgs, err := c.channel.Consume(
		c.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(msgs)
	}()

	log.Println("Event consumer started and listening for membership events")
	return nil
}

func (c *EventConsumer) consume(msgs <-chan amqp091.Delivery) {
	for {
		select {
		case <-c.shutdown:
			log.Println("Stopping event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Println("Message channel closed, reconnecting...")
				time.Sleep(5 * time.Second)
				return
			}

			err := c.processMessage(msg)
			if err != nil {
				log.Printf("FAILED to process message - Exchange: %s, RoutingKey: %s, Error: %v",
					msg.Exchange, msg.RoutingKey, err)
				log.Printf("Failed message body: %s", string(msg.Body))

				// Ack failed messages too; requeuing a poison message would
				// loop forever and every handler here is an idempotent
				// cache invalidation.
				if ackErr := msg.Ack(false); ackErr != nil {
					log.Printf("Error acknowledging failed message: %v", ackErr)
				}
			} else {
				if err := msg.Ack(false); err != nil {
					log.Printf("Error acknowledging successful message: %v", err)
				}
			}
		}
	}
}

func (c *EventConsumer) processMessage(msg amqp091.Delivery) error {
	log.Printf("Processing message from exchange '%s' with routing key: %s", msg.Exchange, msg.RoutingKey)

	switch EventType(msg.RoutingKey) {
	case TeamMemberAdded, TeamMemberRemoved, UserRoleChanged, OrgMemberChanged:
		return c.handleMembershipChanged(msg.Body)
	case TeamArchived:
		return c.handleTeamArchived(msg.Body)
	default:
		log.Printf("Unknown routing key: %s from exchange: %s", msg.RoutingKey, msg.Exchange)
		return nil
	}
}

func (c *EventConsumer) handleMembershipChanged(body []byte) error {
	var event MembershipEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal membership event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	affected := c.affectedUserIDs(event)
	if len(affected) == 0 {
		// The event does not name the affected users; flush everything
		// rather than keep stale identity sets around.
		log.Printf("Membership event %s carries no user ids, flushing principal cache", event.Type)
		c.principals.InvalidateAll(ctx)
		return nil
	}

	for _, hex := range affected {
		userID, err := bson.ObjectIDFromHex(hex)
		if err != nil {
			log.Printf("Skipping invalid user id in membership event: %s", hex)
			continue
		}
		c.principals.Invalidate(ctx, userID)
	}
	return nil
}

// handleTeamArchived invalidates every listed member; the archive event
// carries the member ids because this service no longer sees them once the
// team is archived.
func (c *EventConsumer) handleTeamArchived(body []byte) error {
	return c.handleMembershipChanged(body)
}

func (c *EventConsumer) affectedUserIDs(event MembershipEvent) []string {
	if len(event.UserIDs) > 0 {
		return event.UserIDs
	}
	if event.UserID != "" {
		return []string{event.UserID}
	}
	return nil
}

func (c *EventConsumer) Close() error {
	if !c.enabled {
		return nil
	}

	close(c.shutdown)
	c.wg.Wait()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}

	return nil
}
