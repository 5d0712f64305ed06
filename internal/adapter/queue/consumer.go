package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

type Finalizer interface {
	Finalize(ctx context.Context, checkoutID uuid.UUID, payment domain.PaymentResult) (*domain.EnrollmentResult, error)
}

// PaymentMessage is what the payment provider publishes once a charge for a
// checkout has settled.
type PaymentMessage struct {
	CheckoutID string `json:"checkout_id"`
	domain.PaymentResult
}

type verdict int

const (
	ack verdict = iota
	requeue
	reject
)

// PaymentConsumer finalizes checkouts from payment results. Redelivered
// messages are harmless because finalization replays its stored result.
type PaymentConsumer struct {
	url       string
	queue     string
	prefetch  int
	finalizer Finalizer
	log       *logger.Logger
}

func NewPaymentConsumer(url, queue string, finalizer Finalizer, log *logger.Logger) *PaymentConsumer {
	if queue == "" {
		queue = DefaultPaymentsQueue
	}
	return &PaymentConsumer{
		url:       url,
		queue:     queue,
		prefetch:  20,
		finalizer: finalizer,
		log:       log.With("component", "payment_consumer", "queue", queue),
	}
}

// Run keeps a consumer attached to the broker until ctx is done, redialing
// with exponential backoff whenever the connection drops.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			wait := b.NextBackOff()
			c.log.Warn("failed to dial broker", "error", err, "retry_in", wait.String())
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		b.Reset()

		c.log.Info("payment consumer connected")
		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			c.log.Info("payment consumer stopped")
			return nil
		}
		c.log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, b.NextBackOff()) {
			return nil
		}
	}
}

func (c *PaymentConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("set qos failed", "error", err)
	}
	if err := declare(ch, c.queue); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(d, c.handle(ctx, d.Body))
		}
	}
}

func (c *PaymentConsumer) settle(d amqp.Delivery, v verdict) {
	var err error
	switch v {
	case ack:
		err = d.Ack(false)
	case requeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.log.Warn("failed to settle delivery", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// handle finalizes one payment message. Business failures are acked since
// redelivery cannot change their outcome; infrastructure failures and lost
// races are requeued.
func (c *PaymentConsumer) handle(ctx context.Context, body []byte) verdict {
	var msg PaymentMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.log.Error("undecodable payment message", "error", err)
		return reject
	}

	checkoutID, err := uuid.Parse(msg.CheckoutID)
	if err != nil {
		c.log.Error("payment message has an invalid checkout id", "checkout_id", msg.CheckoutID)
		return reject
	}

	result, err := c.finalizer.Finalize(ctx, checkoutID, msg.PaymentResult)
	switch {
	case err == nil:
		c.log.Info("payment applied", "checkout_id", checkoutID.String(), "confirmation_number", result.ConfirmationNumber)
		return ack
	case errors.Is(err, domain.ErrConcurrentModification):
		c.log.Warn("payment finalization contended, requeueing", "checkout_id", checkoutID.String())
		return requeue
	case isBusiness(err):
		c.log.Warn("payment not applied", "checkout_id", checkoutID.String(), "error", err)
		return ack
	default:
		c.log.Error("payment finalization failed", "checkout_id", checkoutID.String(), "error", err)
		return requeue
	}
}

func isBusiness(err error) bool {
	var derr *domain.Error
	return errors.As(err, &derr)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
