package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

// EventDirectory serves read-only session metadata.
type EventDirectory interface {
	GetSession(ctx context.Context, id uuid.UUID) (*domain.SessionInfo, error)
}

type IdentityProvider interface {
	// Resolve returns (nil, nil) when no identity matches.
	Resolve(ctx context.Context, companyID string, ref domain.IdentityRef) (*domain.Identity, error)
}

type DiscountCatalog interface {
	// LookupDiscount returns (nil, nil) for unknown codes.
	LookupDiscount(ctx context.Context, code string) (*domain.Discount, error)
	VoucherBalance(ctx context.Context, companyID string) (int, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type AvailabilityCache interface {
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, sessionID uuid.UUID) (*domain.Availability, error)
	// Generation changes on every Invalidate. Read it before loading the
	// counters that will be passed to Set.
	Generation(ctx context.Context, sessionID uuid.UUID) (int64, error)
	// Set stores availability unless the session was invalidated after
	// generation was read.
	Set(ctx context.Context, availability *domain.Availability, generation int64) error
	Invalidate(ctx context.Context, sessionID uuid.UUID) error
}

// CheckoutExpirer is the slice of the checkout lifecycle the sweeper drives.
type CheckoutExpirer interface {
	ListExpired(ctx context.Context, limit int) ([]uuid.UUID, error)
	Expire(ctx context.Context, checkoutID uuid.UUID) (bool, error)
}
