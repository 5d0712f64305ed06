package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

type Settings struct {
	ReservationTTL time.Duration
	MaxAttendees   int
	// AutoPromote offers seats freed by cancel, expire, attendee removal or
	// demotion to the head of the waitlist inside the same transaction.
	AutoPromote bool
	Retry       RetryPolicy
	Clock       func() time.Time
}

func DefaultSettings() Settings {
	return Settings{
		ReservationTTL: 15 * time.Minute,
		MaxAttendees:   50,
		Retry:          DefaultRetryPolicy(),
	}
}

// engine carries what every service needs to run a retried transaction and
// publish its side effects after commit.
type engine struct {
	store     ports.Store
	cache     ports.AvailabilityCache
	publisher ports.EventPublisher
	settings  Settings
	log       *logger.Logger
}

func (e *engine) now() time.Time {
	if e.settings.Clock != nil {
		return e.settings.Clock().UTC()
	}
	return time.Now().UTC()
}

func (e *engine) run(ctx context.Context, op string, fn func(ctx context.Context, tx ports.Tx) error) error {
	return e.settings.Retry.do(ctx, op, func() error {
		return e.store.WithinTx(ctx, fn)
	})
}

func (e *engine) invalidate(ctx context.Context, sessionID uuid.UUID) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, sessionID); err != nil {
		e.log.Warn("availability cache invalidation failed", "session_id", sessionID.String(), "error", err)
	}
}

func (e *engine) publish(ctx context.Context, routingKey string, payload any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, routingKey, payload); err != nil {
		e.log.Warn("event publish failed", "routing_key", routingKey, "error", err)
	}
}
