package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

const maxConfirmationAttempts = 5

// CheckoutFinalizer turns paid checkouts into enrollments. It is the only
// writer of enrollment records.
type CheckoutFinalizer struct {
	engine
	ledger     *CapacityLedger
	directory  ports.EventDirectory
	identities ports.IdentityProvider
}

func NewCheckoutFinalizer(
	store ports.Store,
	ledger *CapacityLedger,
	directory ports.EventDirectory,
	identities ports.IdentityProvider,
	cache ports.AvailabilityCache,
	publisher ports.EventPublisher,
	settings Settings,
	log *logger.Logger,
) *CheckoutFinalizer {
	return &CheckoutFinalizer{
		engine: engine{
			store:     store,
			cache:     cache,
			publisher: publisher,
			settings:  settings,
			log:       log.With("component", "finalizer"),
		},
		ledger:     ledger,
		directory:  directory,
		identities: identities,
	}
}

// Finalize records a successful payment against an in-progress checkout.
// Calling it again for a finalized checkout returns the stored result and
// writes nothing. A failed payment leaves the checkout and its hold as they
// were.
func (f *CheckoutFinalizer) Finalize(ctx context.Context, checkoutID uuid.UUID, payment domain.PaymentResult) (*domain.EnrollmentResult, error) {
	var (
		result   *domain.EnrollmentResult
		checkout *domain.CheckoutSession
		replayed bool
	)

	err := f.run(ctx, "finalize checkout", func(ctx context.Context, tx ports.Tx) error {
		replayed = false

		c, err := tx.Checkouts().Get(ctx, checkoutID)
		if err != nil {
			return err
		}
		if c.Status == domain.CheckoutFinalized && c.Result != nil {
			result, replayed = c.Result, true
			return nil
		}
		if c.Status != domain.CheckoutInProgress {
			return domain.SessionExpired(c.ID, c.Status)
		}

		if !payment.Succeeded {
			return domain.PaymentFinalization(payment.FailureReason)
		}

		info, err := f.directory.GetSession(ctx, c.SessionID)
		if err != nil {
			return err
		}
		totals := TotalsFor(c, info.UnitPrice)
		if payment.Amount != totals.Total {
			return domain.Validation("payment amount does not match checkout total").
				With("expected", totals.Total).
				With("received", payment.Amount)
		}

		now := f.now()
		won, err := tx.Checkouts().TransitionStatus(ctx, c, domain.CheckoutFinalized, now)
		if err != nil {
			return err
		}
		if !won {
			current, err := tx.Checkouts().Get(ctx, checkoutID)
			if err != nil {
				return err
			}
			if current.Status == domain.CheckoutFinalized && current.Result != nil {
				result, replayed = current.Result, true
				return nil
			}
			return domain.SessionExpired(current.ID, current.Status)
		}

		result, err = f.commit(ctx, tx, c, payment, totals, now)
		checkout = c
		return err
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		f.publish(ctx, "checkout.finalized", domain.CheckoutFinalizedEvent{
			CheckoutID:         checkout.ID.String(),
			SessionID:          checkout.SessionID.String(),
			CompanyID:          checkout.CompanyID,
			ConfirmationNumber: result.ConfirmationNumber,
			Amount:             result.Amount,
			EnrolledCount:      len(result.Enrollments),
			WaitlistedCount:    len(result.Waitlisted),
			FinalizedAt:        result.FinalizedAt.Format(time.RFC3339),
		})
		f.invalidate(ctx, checkout.SessionID)
		f.log.Info("checkout finalized",
			"checkout_id", checkout.ID.String(),
			"confirmation_number", result.ConfirmationNumber,
			"enrolled", len(result.Enrollments),
			"waitlisted", len(result.Waitlisted),
		)
	}
	return result, nil
}

// commit runs after the status compare-and-set was won.
func (f *CheckoutFinalizer) commit(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, payment domain.PaymentResult, totals Totals, now time.Time) (*domain.EnrollmentResult, error) {
	seated := c.SeatedCount()
	if err := f.ledger.Promote(ctx, tx, c.SessionID, seated, c.HeldSeats); err != nil {
		return nil, err
	}

	enrollments := make([]domain.Enrollment, 0, seated)
	for _, a := range c.Attendees {
		if !a.HoldsSeat() {
			continue
		}
		e := domain.Enrollment{
			ID:         uuid.New(),
			SessionID:  c.SessionID,
			CheckoutID: uuid.NullUUID{UUID: c.ID, Valid: true},
			CompanyID:  c.CompanyID,
			IdentityID: a.IdentityID,
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			Email:      a.Email,
			EnrolledAt: now,
		}
		if err := f.recordEnrollment(ctx, tx, &e); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}

	if err := tx.Waitlist().Activate(ctx, c.ID); err != nil {
		return nil, err
	}
	waitlisted, err := tx.Waitlist().ListByCheckout(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	if c.ConfirmationNumber == "" {
		number, err := f.confirmationNumber(ctx, tx)
		if err != nil {
			return nil, err
		}
		c.ConfirmationNumber = number
	}

	result := &domain.EnrollmentResult{
		CheckoutID:         c.ID,
		SessionID:          c.SessionID,
		ConfirmationNumber: c.ConfirmationNumber,
		Amount:             totals.Total,
		FinalizedAt:        now,
		Enrollments:        enrollments,
		Waitlisted:         waitlisted,
	}

	c.Amount = totals.Total
	c.FinalizedAt = &now
	c.HeldSeats = 0
	c.Payment = domain.Payment{Reference: payment.Reference, CardLast4: payment.CardLast4, CardType: payment.CardType}
	c.Result = result
	if err := tx.Checkouts().Update(ctx, c); err != nil {
		return nil, err
	}
	return result, nil
}

func (f *CheckoutFinalizer) recordEnrollment(ctx context.Context, tx ports.Tx, e *domain.Enrollment) error {
	return tx.Enrollments().Insert(ctx, e)
}

func (f *CheckoutFinalizer) confirmationNumber(ctx context.Context, tx ports.Tx) (string, error) {
	for i := 0; i < maxConfirmationAttempts; i++ {
		number := newConfirmationNumber()
		exists, err := tx.Checkouts().ConfirmationNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	// Collisions mean the random draw was unlucky; a fresh transaction
	// draws again.
	return "", fmt.Errorf("no unique confirmation number after %d attempts: %w", maxConfirmationAttempts, domain.ErrVersionConflict)
}

// newConfirmationNumber returns CN- followed by 8 upper-case hex digits.
func newConfirmationNumber() string {
	id := uuid.New()
	return fmt.Sprintf("CN-%X", id[:4])
}

// ReplaceEnrollmentAttendee swaps the person on an enrollment. The seat is
// kept.
func (f *CheckoutFinalizer) ReplaceEnrollmentAttendee(ctx context.Context, enrollmentID uuid.UUID, ref domain.IdentityRef) (*domain.Enrollment, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var enrollment *domain.Enrollment
	err := f.run(ctx, "replace enrollment attendee", func(ctx context.Context, tx ports.Tx) error {
		e, err := tx.Enrollments().Get(ctx, enrollmentID)
		if err != nil {
			return err
		}

		info, err := f.directory.GetSession(ctx, e.SessionID)
		if err != nil {
			return err
		}
		identity, err := resolveIdentity(ctx, f.identities, e.CompanyID, ref, info)
		if err != nil {
			return err
		}

		if !strings.EqualFold(identity.Email, e.Email) {
			taken, err := emailTaken(ctx, tx, e.SessionID, identity.Email, uuid.Nil)
			if err != nil {
				return err
			}
			if taken {
				return domain.Validation("attendee is already enrolled or waitlisted for this session").
					With("email", identity.Email)
			}
		}

		e.IdentityID = identity.ID
		e.FirstName = identity.FirstName
		e.LastName = identity.LastName
		e.Email = identity.Email
		if err := tx.Enrollments().UpdateAttendee(ctx, e); err != nil {
			return err
		}
		enrollment = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (f *CheckoutFinalizer) Enrollments(ctx context.Context, sessionID uuid.UUID) ([]domain.Enrollment, error) {
	var enrollments []domain.Enrollment
	err := f.run(ctx, "list enrollments", func(ctx context.Context, tx ports.Tx) error {
		var err error
		enrollments, err = tx.Enrollments().ListBySession(ctx, sessionID)
		return err
	})
	return enrollments, err
}
