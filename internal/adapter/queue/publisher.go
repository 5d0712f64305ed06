// Package queue connects the engine to RabbitMQ: domain events go out on
// one durable queue and payment results come in on another.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

const (
	DefaultEventsQueue   = "reservation.events"
	DefaultPaymentsQueue = "payment.results"
)

// Publisher sends events to a durable queue. The routing key travels in the
// message type so a single queue can carry every event kind.
type Publisher struct {
	url   string
	queue string
	log   *logger.Logger
}

func NewPublisher(url, queue string, log *logger.Logger) *Publisher {
	if queue == "" {
		queue = DefaultEventsQueue
	}
	return &Publisher{url: url, queue: queue, log: log.With("component", "publisher", "queue", queue)}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	msg, err := newMessage(routingKey, payload, time.Now().UTC())
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch, p.queue); err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.log.Debug("event published", "routing_key", routingKey, "message_id", msg.MessageId)
	return nil
}

func newMessage(routingKey string, payload any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s: %w", routingKey, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         routingKey,
		MessageId:    fmt.Sprintf("%s-%d", routingKey, now.UnixNano()),
		Timestamp:    now,
		Body:         body,
	}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

var _ ports.EventPublisher = (*Publisher)(nil)
