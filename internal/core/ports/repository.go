package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

// Store opens the transaction boundary that every cross-entity mutation runs
// inside. The function's error rolls the transaction back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Sessions() SessionRepository
	Checkouts() CheckoutRepository
	Waitlist() WaitlistRepository
	Enrollments() EnrollmentRepository
}

type SessionRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.EventSession, error)
	Create(ctx context.Context, session *domain.EventSession) error
	// UpdateCounters writes the counters when the stored version still equals
	// session.Version and increments session.Version. A stale version yields
	// domain.ErrVersionConflict.
	UpdateCounters(ctx context.Context, session *domain.EventSession) error
}

type CheckoutRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.CheckoutSession, error)
	FindInProgress(ctx context.Context, sessionID uuid.UUID, companyID, requesterID string) (*domain.CheckoutSession, error)
	Create(ctx context.Context, checkout *domain.CheckoutSession) error
	// Update persists header fields and attendees guarded by checkout.Version.
	Update(ctx context.Context, checkout *domain.CheckoutSession) error
	// TransitionStatus moves an in-progress checkout to status. It reports
	// false when the checkout was no longer in progress.
	TransitionStatus(ctx context.Context, checkout *domain.CheckoutSession, status domain.CheckoutStatus, at time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ConfirmationNumberExists(ctx context.Context, number string) (bool, error)
}

type WaitlistRepository interface {
	List(ctx context.Context, sessionID uuid.UUID) ([]domain.WaitlistEntry, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error)
	ListByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]domain.WaitlistEntry, error)
	FindByAttendee(ctx context.Context, attendeeID uuid.UUID) (*domain.WaitlistEntry, error)
	Count(ctx context.Context, sessionID uuid.UUID) (int, error)
	Insert(ctx context.Context, entry *domain.WaitlistEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateIdentity(ctx context.Context, entry *domain.WaitlistEntry) error
	// Shift adds delta to every position in [from, to] of the session.
	Shift(ctx context.Context, sessionID uuid.UUID, from, to, delta int) error
	SetPosition(ctx context.Context, id uuid.UUID, position int) error
	Activate(ctx context.Context, checkoutID uuid.UUID) error
	EmailExists(ctx context.Context, sessionID uuid.UUID, email string, excludeCheckout uuid.UUID) (bool, error)
}

type EnrollmentRepository interface {
	Insert(ctx context.Context, enrollment *domain.Enrollment) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateAttendee(ctx context.Context, enrollment *domain.Enrollment) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Enrollment, error)
	EmailExists(ctx context.Context, sessionID uuid.UUID, email string) (bool, error)
}
