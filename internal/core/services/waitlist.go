package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

const (
	PromotedToHold       = "held"
	PromotedToEnrollment = "enrolled"
)

type Promotion struct {
	Entry   domain.WaitlistEntry `json:"entry"`
	Outcome string               `json:"outcome"`
}

// WaitlistManager keeps per-session waitlist positions contiguous. The
// primitives run inside the caller's transaction; the remaining methods
// open their own.
type WaitlistManager struct {
	engine
	ledger    *CapacityLedger
	finalizer *CheckoutFinalizer
	directory ports.EventDirectory
}

func NewWaitlistManager(
	store ports.Store,
	ledger *CapacityLedger,
	finalizer *CheckoutFinalizer,
	directory ports.EventDirectory,
	cache ports.AvailabilityCache,
	publisher ports.EventPublisher,
	settings Settings,
	log *logger.Logger,
) *WaitlistManager {
	return &WaitlistManager{
		engine: engine{
			store:     store,
			cache:     cache,
			publisher: publisher,
			settings:  settings,
			log:       log.With("component", "waitlist"),
		},
		ledger:    ledger,
		finalizer: finalizer,
		directory: directory,
	}
}

// Enqueue appends entry to the tail of its session's waitlist and returns
// the assigned position.
func (w *WaitlistManager) Enqueue(ctx context.Context, tx ports.Tx, entry *domain.WaitlistEntry) (int, error) {
	if err := w.ledger.Touch(ctx, tx, entry.SessionID); err != nil {
		return 0, err
	}

	n, err := tx.Waitlist().Count(ctx, entry.SessionID)
	if err != nil {
		return 0, err
	}

	entry.Position = n + 1
	if err := tx.Waitlist().Insert(ctx, entry); err != nil {
		return 0, err
	}
	return entry.Position, nil
}

// Dequeue removes the entry and closes the gap it leaves.
func (w *WaitlistManager) Dequeue(ctx context.Context, tx ports.Tx, entryID uuid.UUID) (*domain.WaitlistEntry, error) {
	entry, err := tx.Waitlist().Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := w.ledger.Touch(ctx, tx, entry.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Waitlist().Delete(ctx, entry.ID); err != nil {
		return nil, err
	}
	if err := tx.Waitlist().Shift(ctx, entry.SessionID, entry.Position+1, math.MaxInt32, -1); err != nil {
		return nil, err
	}
	return entry, nil
}

// Reposition moves an entry to newPosition, shifting the entries in between
// by one.
func (w *WaitlistManager) Reposition(ctx context.Context, tx ports.Tx, entryID uuid.UUID, newPosition int) (*domain.WaitlistEntry, error) {
	entry, err := tx.Waitlist().Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := w.ledger.Touch(ctx, tx, entry.SessionID); err != nil {
		return nil, err
	}

	n, err := tx.Waitlist().Count(ctx, entry.SessionID)
	if err != nil {
		return nil, err
	}
	if newPosition < 1 || newPosition > n {
		return nil, domain.InvalidWaitlistPosition(newPosition, n)
	}

	old := entry.Position
	switch {
	case newPosition == old:
		return entry, nil
	case newPosition < old:
		err = tx.Waitlist().Shift(ctx, entry.SessionID, newPosition, old-1, 1)
	default:
		err = tx.Waitlist().Shift(ctx, entry.SessionID, old+1, newPosition, -1)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Waitlist().SetPosition(ctx, entry.ID, newPosition); err != nil {
		return nil, err
	}
	entry.Position = newPosition
	return entry, nil
}

// PromoteNext pops up to availableSeats entries from the head of the
// waitlist, bounded by the free capacity of the session.
func (w *WaitlistManager) PromoteNext(ctx context.Context, tx ports.Tx, sessionID uuid.UUID, availableSeats int) ([]Promotion, error) {
	if availableSeats <= 0 {
		return nil, nil
	}

	session, err := w.ledger.Snapshot(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	entries, err := tx.Waitlist().List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	n := min(availableSeats, session.Available(), len(entries))
	promoted := make([]Promotion, 0, n)
	for i := 0; i < n; i++ {
		p, err := w.promote(ctx, tx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			promoted = append(promoted, *p)
		}
	}
	return promoted, nil
}

// promote removes one entry from the waitlist and hands its seat to the
// ledger. Pending entries become a hold on their in-progress checkout;
// active entries become enrollments.
func (w *WaitlistManager) promote(ctx context.Context, tx ports.Tx, entryID uuid.UUID) (*Promotion, error) {
	entry, err := w.Dequeue(ctx, tx, entryID)
	if err != nil {
		return nil, err
	}

	if entry.State == domain.WaitlistPending {
		return w.promoteToHold(ctx, tx, entry)
	}

	if err := w.ledger.Promote(ctx, tx, entry.SessionID, 1, 0); err != nil {
		return nil, err
	}

	enrollment := &domain.Enrollment{
		ID:         uuid.New(),
		SessionID:  entry.SessionID,
		CheckoutID: entry.CheckoutID,
		CompanyID:  entry.CompanyID,
		IdentityID: entry.IdentityID,
		FirstName:  entry.FirstName,
		LastName:   entry.LastName,
		Email:      entry.Email,
		EnrolledAt: w.now(),
	}
	if err := w.finalizer.recordEnrollment(ctx, tx, enrollment); err != nil {
		return nil, err
	}
	return &Promotion{Entry: *entry, Outcome: PromotedToEnrollment}, nil
}

func (w *WaitlistManager) promoteToHold(ctx context.Context, tx ports.Tx, entry *domain.WaitlistEntry) (*Promotion, error) {
	if !entry.CheckoutID.Valid || !entry.AttendeeID.Valid {
		w.log.Warn("dropping pending waitlist entry without checkout", "entry_id", entry.ID.String())
		return nil, nil
	}

	checkout, err := tx.Checkouts().Get(ctx, entry.CheckoutID.UUID)
	if err != nil {
		return nil, err
	}
	attendee := checkout.Attendee(entry.AttendeeID.UUID)
	if checkout.Status != domain.CheckoutInProgress || attendee == nil {
		w.log.Warn("dropping stale pending waitlist entry", "entry_id", entry.ID.String(), "checkout_id", checkout.ID.String())
		return nil, nil
	}

	if _, _, err := w.ledger.Reserve(ctx, tx, entry.SessionID, 1, true); err != nil {
		return nil, err
	}

	attendee.IsWaitlist = false
	checkout.HeldSeats++
	if err := tx.Checkouts().Update(ctx, checkout); err != nil {
		return nil, err
	}
	return &Promotion{Entry: *entry, Outcome: PromotedToHold}, nil
}

// Demote moves a seated attendee of an in-progress checkout to the tail of
// the waitlist. The caller persists the checkout.
func (w *WaitlistManager) Demote(ctx context.Context, tx ports.Tx, checkout *domain.CheckoutSession, attendee *domain.Attendee, seatPrice int64) (*domain.WaitlistEntry, error) {
	if !attendee.HoldsSeat() {
		return nil, domain.Validation("attendee does not hold a seat")
	}

	if err := w.ledger.Release(ctx, tx, checkout.SessionID, 1); err != nil {
		return nil, err
	}
	attendee.IsWaitlist = true
	checkout.HeldSeats = max(0, checkout.HeldSeats-1)

	entry := domain.EntryFromAttendee(checkout, attendee, seatPrice, w.now())
	if _, err := w.Enqueue(ctx, tx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// fill offers freed capacity to the head of the waitlist when auto
// promotion is enabled.
func (w *WaitlistManager) fill(ctx context.Context, tx ports.Tx, sessionID uuid.UUID) ([]Promotion, error) {
	if !w.settings.AutoPromote {
		return nil, nil
	}
	return w.PromoteNext(ctx, tx, sessionID, math.MaxInt32)
}

func (w *WaitlistManager) List(ctx context.Context, sessionID uuid.UUID) ([]domain.WaitlistEntry, error) {
	var entries []domain.WaitlistEntry
	err := w.run(ctx, "list waitlist", func(ctx context.Context, tx ports.Tx) error {
		var err error
		entries, err = tx.Waitlist().List(ctx, sessionID)
		return err
	})
	return entries, err
}

// Move repositions an entry and returns the session's updated waitlist.
func (w *WaitlistManager) Move(ctx context.Context, entryID uuid.UUID, position int) ([]domain.WaitlistEntry, error) {
	var entries []domain.WaitlistEntry
	var sessionID uuid.UUID
	err := w.run(ctx, "move waitlist entry", func(ctx context.Context, tx ports.Tx) error {
		entry, err := w.Reposition(ctx, tx, entryID, position)
		if err != nil {
			return err
		}
		sessionID = entry.SessionID
		entries, err = tx.Waitlist().List(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	w.invalidate(ctx, sessionID)
	return entries, nil
}

// Remove drops an entry from the waitlist. A pending entry's attendee is
// deselected on its checkout.
func (w *WaitlistManager) Remove(ctx context.Context, entryID uuid.UUID) error {
	var sessionID uuid.UUID
	err := w.run(ctx, "remove waitlist entry", func(ctx context.Context, tx ports.Tx) error {
		entry, err := w.Dequeue(ctx, tx, entryID)
		if err != nil {
			return err
		}
		sessionID = entry.SessionID

		if entry.State != domain.WaitlistPending || !entry.CheckoutID.Valid || !entry.AttendeeID.Valid {
			return nil
		}
		checkout, err := tx.Checkouts().Get(ctx, entry.CheckoutID.UUID)
		if err != nil {
			return err
		}
		if attendee := checkout.Attendee(entry.AttendeeID.UUID); attendee != nil {
			attendee.IsWaitlist = false
			attendee.IsSelected = false
			return tx.Checkouts().Update(ctx, checkout)
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.invalidate(ctx, sessionID)
	return nil
}

// Promote promotes up to seats entries from the head of the session's
// waitlist.
func (w *WaitlistManager) Promote(ctx context.Context, sessionID uuid.UUID, seats int) ([]Promotion, error) {
	if seats <= 0 {
		return nil, domain.Validation("seats must be positive")
	}

	var promoted []Promotion
	err := w.run(ctx, "promote waitlist", func(ctx context.Context, tx ports.Tx) error {
		var err error
		promoted, err = w.PromoteNext(ctx, tx, sessionID, seats)
		return err
	})
	if err != nil {
		return nil, err
	}

	w.announce(ctx, promoted)
	w.invalidate(ctx, sessionID)
	return promoted, nil
}

// Enroll promotes one specific entry regardless of its position.
func (w *WaitlistManager) Enroll(ctx context.Context, entryID uuid.UUID) (*Promotion, error) {
	var promoted *Promotion
	err := w.run(ctx, "enroll waitlist entry", func(ctx context.Context, tx ports.Tx) error {
		var err error
		promoted, err = w.promote(ctx, tx, entryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if promoted == nil {
		return nil, domain.Validation("waitlist entry no longer belongs to an active checkout")
	}

	w.announce(ctx, []Promotion{*promoted})
	w.invalidate(ctx, promoted.Entry.SessionID)
	return promoted, nil
}

// DemoteEnrollment moves an enrolled attendee back to the tail of the
// waitlist, freeing the seat. With auto promotion on, the freed seat goes to
// the head of the queue in the same transaction.
func (w *WaitlistManager) DemoteEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*domain.WaitlistEntry, error) {
	var (
		entry    *domain.WaitlistEntry
		promoted []Promotion
	)
	err := w.run(ctx, "demote enrollment", func(ctx context.Context, tx ports.Tx) error {
		promoted = nil

		enrollment, err := tx.Enrollments().Get(ctx, enrollmentID)
		if err != nil {
			return err
		}

		info, err := w.directory.GetSession(ctx, enrollment.SessionID)
		if err != nil {
			return err
		}

		if err := tx.Enrollments().Delete(ctx, enrollment.ID); err != nil {
			return err
		}
		if err := w.ledger.Withdraw(ctx, tx, enrollment.SessionID, 1); err != nil {
			return err
		}

		entry = &domain.WaitlistEntry{
			ID:         uuid.New(),
			SessionID:  enrollment.SessionID,
			CheckoutID: enrollment.CheckoutID,
			CompanyID:  enrollment.CompanyID,
			IdentityID: enrollment.IdentityID,
			FirstName:  enrollment.FirstName,
			LastName:   enrollment.LastName,
			Email:      enrollment.Email,
			SeatPrice:  info.UnitPrice,
			State:      domain.WaitlistActive,
			AddedAt:    w.now(),
		}
		if _, err := w.Enqueue(ctx, tx, entry); err != nil {
			return err
		}

		promoted, err = w.fill(ctx, tx, enrollment.SessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	w.announce(ctx, promoted)
	w.invalidate(ctx, entry.SessionID)
	return entry, nil
}

func (w *WaitlistManager) announce(ctx context.Context, promoted []Promotion) {
	for _, p := range promoted {
		ev := domain.WaitlistPromotedEvent{
			SessionID:  p.Entry.SessionID.String(),
			EntryID:    p.Entry.ID.String(),
			Email:      p.Entry.Email,
			Outcome:    p.Outcome,
			PromotedAt: w.now().Format(time.RFC3339),
		}
		if p.Entry.CheckoutID.Valid {
			ev.CheckoutID = p.Entry.CheckoutID.UUID.String()
		}
		w.publish(ctx, "waitlist.promoted", ev)
	}
}
