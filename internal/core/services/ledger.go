package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
)

// CapacityLedger owns the seat counters of every event session. Each method
// runs inside the caller's transaction and ends with a version
// compare-and-set on the session row, so two transactions that touched the
// same session cannot both commit.
type CapacityLedger struct {
	directory ports.EventDirectory
	clock     func() time.Time
}

func NewCapacityLedger(directory ports.EventDirectory, settings Settings) *CapacityLedger {
	clock := settings.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CapacityLedger{directory: directory, clock: clock}
}

// Reserve holds up to requested seats. Seats that do not fit are returned as
// overflow. With requireSeats set, a reservation that grants nothing fails
// with a capacity error instead.
func (l *CapacityLedger) Reserve(ctx context.Context, tx ports.Tx, sessionID uuid.UUID, requested int, requireSeats bool) (granted, overflow int, err error) {
	if requested <= 0 {
		return 0, 0, domain.Validation("requested seats must be positive")
	}

	session, err := l.load(ctx, tx, sessionID)
	if err != nil {
		return 0, 0, err
	}

	available := session.Available()
	granted = min(requested, available)
	overflow = requested - granted

	if granted == 0 {
		if requireSeats {
			return 0, 0, domain.CapacityExceeded(sessionID, requested, available)
		}
		return 0, overflow, nil
	}

	session.HeldCount += granted
	if err := l.save(ctx, tx, session); err != nil {
		return 0, 0, err
	}
	return granted, overflow, nil
}

// Release gives held seats back, never dropping the held count below zero.
func (l *CapacityLedger) Release(ctx context.Context, tx ports.Tx, sessionID uuid.UUID, seats int) error {
	if seats <= 0 {
		return nil
	}

	session, err := l.load(ctx, tx, sessionID)
	if err != nil {
		return err
	}

	session.HeldCount = max(0, session.HeldCount-seats)
	return l.save(ctx, tx, session)
}

// Promote turns seats into enrollments. fromHold of them were previously
// held; the rest must fit in the remaining free capacity.
func (l *CapacityLedger) Promote(ctx context.Context, tx ports.Tx, sessionID uuid.UUID, seats, fromHold int) error {
	if seats <= 0 {
		return nil
	}

	session, err := l.load(ctx, tx, sessionID)
	if err != nil {
		return err
	}

	session.HeldCount = max(0, session.HeldCount-fromHold)
	if !session.IsUnlimited() && session.EnrolledCount+session.HeldCount+seats > session.MaxEnrollments {
		return domain.CapacityExceeded(sessionID, seats, session.Available())
	}

	session.EnrolledCount += seats
	return l.save(ctx, tx, session)
}

// Withdraw removes enrolled seats, floored at zero.
func (l *CapacityLedger) Withdraw(ctx context.Context, tx ports.Tx, sessionID uuid.UUID, seats int) error {
	if seats <= 0 {
		return nil
	}

	session, err := l.load(ctx, tx, sessionID)
	if err != nil {
		return err
	}

	session.EnrolledCount = max(0, session.EnrolledCount-seats)
	return l.save(ctx, tx, session)
}

// Touch bumps the session version without changing counters. Waitlist
// mutations call it first so that renumbering is serialized per session.
func (l *CapacityLedger) Touch(ctx context.Context, tx ports.Tx, sessionID uuid.UUID) error {
	session, err := l.load(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	return l.save(ctx, tx, session)
}

func (l *CapacityLedger) Snapshot(ctx context.Context, tx ports.Tx, sessionID uuid.UUID) (*domain.EventSession, error) {
	return l.load(ctx, tx, sessionID)
}

// load returns the counters row, creating it from the event directory the
// first time a session is seen.
func (l *CapacityLedger) load(ctx context.Context, tx ports.Tx, sessionID uuid.UUID) (*domain.EventSession, error) {
	session, err := tx.Sessions().Get(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	info, err := l.directory.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session = &domain.EventSession{
		ID:             sessionID,
		MaxEnrollments: info.MaxEnrollments,
		IsVirtualOnly:  info.IsVirtualOnly,
		UpdatedAt:      l.clock().UTC(),
	}
	if err := tx.Sessions().Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (l *CapacityLedger) save(ctx context.Context, tx ports.Tx, session *domain.EventSession) error {
	session.UpdatedAt = l.clock().UTC()
	return tx.Sessions().UpdateCounters(ctx, session)
}
