package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

type waitlistRepository struct {
	q *querier
}

const waitlistColumns = `id, session_id, checkout_id, attendee_id, company_id, identity_id,
	first_name, last_name, email, queue_position, seat_price, state, added_at`

func scanEntry(row interface{ Scan(...any) error }) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	var addedAt int64

	if err := row.Scan(
		&e.ID,
		&e.SessionID,
		&e.CheckoutID,
		&e.AttendeeID,
		&e.CompanyID,
		&e.IdentityID,
		&e.FirstName,
		&e.LastName,
		&e.Email,
		&e.Position,
		&e.SeatPrice,
		&e.State,
		&addedAt,
	); err != nil {
		return nil, err
	}

	e.AddedAt = fromMillis(addedAt)
	return &e, nil
}

func (r *waitlistRepository) list(ctx context.Context, query string, args ...any) ([]domain.WaitlistEntry, error) {
	rows, err := r.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var entries []domain.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *waitlistRepository) List(ctx context.Context, sessionID uuid.UUID) ([]domain.WaitlistEntry, error) {
	return r.list(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE session_id = ? ORDER BY queue_position`, sessionID)
}

func (r *waitlistRepository) ListByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]domain.WaitlistEntry, error) {
	return r.list(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE checkout_id = ? ORDER BY queue_position`, checkoutID)
}

func (r *waitlistRepository) Get(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	e, err := scanEntry(r.q.queryRow(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("waitlist entry", id)
		}
		return nil, err
	}
	return e, nil
}

func (r *waitlistRepository) FindByAttendee(ctx context.Context, attendeeID uuid.UUID) (*domain.WaitlistEntry, error) {
	e, err := scanEntry(r.q.queryRow(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE attendee_id = ?`, attendeeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (r *waitlistRepository) Count(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.q.queryRow(ctx, `SELECT COUNT(*) FROM waitlist_entries WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

func (r *waitlistRepository) Insert(ctx context.Context, e *domain.WaitlistEntry) error {
	query := `
	INSERT INTO waitlist_entries (` + waitlistColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.exec(ctx, query,
		e.ID,
		e.SessionID,
		e.CheckoutID,
		e.AttendeeID,
		e.CompanyID,
		e.IdentityID,
		e.FirstName,
		e.LastName,
		e.Email,
		e.Position,
		e.SeatPrice,
		e.State,
		toMillis(e.AddedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	return nil
}

func (r *waitlistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := r.q.execCAS(ctx, `DELETE FROM waitlist_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound("waitlist entry", id)
	}
	return nil
}

func (r *waitlistRepository) UpdateIdentity(ctx context.Context, e *domain.WaitlistEntry) error {
	query := `
	UPDATE waitlist_entries
	SET identity_id = ?, first_name = ?, last_name = ?, email = ?
	WHERE id = ?
	`

	_, err := r.q.exec(ctx, query, e.IdentityID, e.FirstName, e.LastName, e.Email, e.ID)
	return err
}

func (r *waitlistRepository) Shift(ctx context.Context, sessionID uuid.UUID, from, to, delta int) error {
	if from > to {
		return nil
	}

	query := `
	UPDATE waitlist_entries
	SET queue_position = queue_position + ?
	WHERE session_id = ? AND queue_position >= ? AND queue_position <= ?
	`

	_, err := r.q.exec(ctx, query, delta, sessionID, from, to)
	return err
}

func (r *waitlistRepository) SetPosition(ctx context.Context, id uuid.UUID, position int) error {
	_, err := r.q.exec(ctx, `UPDATE waitlist_entries SET queue_position = ? WHERE id = ?`, position, id)
	return err
}

func (r *waitlistRepository) Activate(ctx context.Context, checkoutID uuid.UUID) error {
	_, err := r.q.exec(ctx,
		`UPDATE waitlist_entries SET state = ? WHERE checkout_id = ? AND state = ?`,
		domain.WaitlistActive, checkoutID, domain.WaitlistPending,
	)
	return err
}

func (r *waitlistRepository) EmailExists(ctx context.Context, sessionID uuid.UUID, email string, excludeCheckout uuid.UUID) (bool, error) {
	query := `
	SELECT COUNT(*) FROM waitlist_entries
	WHERE session_id = ? AND LOWER(email) = LOWER(?) AND (checkout_id IS NULL OR checkout_id <> ?)
	`

	var n int
	if err := r.q.queryRow(ctx, query, sessionID, email, excludeCheckout).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
