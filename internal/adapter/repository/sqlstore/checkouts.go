package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

type checkoutRepository struct {
	q *querier
}

const checkoutColumns = `id, session_id, company_id, requester_id, status, reservation_expires_at, held_seats,
	contact_name, contact_email, contact_phone, group_notes,
	voucher_seats, discount_code, discount_type, discount_value,
	admin_discount_type, admin_discount_value, admin_discount_reason,
	amount, confirmation_number, payment_reference, card_last4, card_type,
	finalize_result, finalized_at, version, created_at, updated_at`

func (r *checkoutRepository) scanHeader(row interface{ Scan(...any) error }) (*domain.CheckoutSession, error) {
	var (
		c                        domain.CheckoutSession
		expiresAt, finalizedAt   sql.NullInt64
		confirmation, resultJSON sql.NullString
		createdAt, updatedAt     int64
		discountType, adminType  string
	)

	err := row.Scan(
		&c.ID,
		&c.SessionID,
		&c.CompanyID,
		&c.RequesterID,
		&c.Status,
		&expiresAt,
		&c.HeldSeats,
		&c.Contact.Name,
		&c.Contact.Email,
		&c.Contact.Phone,
		&c.Contact.GroupNotes,
		&c.Discounts.VoucherSeats,
		&c.Discounts.DiscountCode,
		&discountType,
		&c.Discounts.DiscountValue,
		&adminType,
		&c.Discounts.AdminDiscountValue,
		&c.Discounts.AdminDiscountReason,
		&c.Amount,
		&confirmation,
		&c.Payment.Reference,
		&c.Payment.CardLast4,
		&c.Payment.CardType,
		&resultJSON,
		&finalizedAt,
		&c.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Discounts.DiscountType = domain.DiscountType(discountType)
	c.Discounts.AdminDiscountType = domain.DiscountType(adminType)
	c.ReservationExpiresAt = timeFromNull(expiresAt)
	c.FinalizedAt = timeFromNull(finalizedAt)
	c.ConfirmationNumber = confirmation.String
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)

	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.EnrollmentResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode finalize result of checkout %s: %w", c.ID, err)
		}
		c.Result = &result
	}
	return &c, nil
}

func (r *checkoutRepository) Get(ctx context.Context, id uuid.UUID) (*domain.CheckoutSession, error) {
	query := `SELECT ` + checkoutColumns + ` FROM checkout_sessions WHERE id = ?`

	c, err := r.scanHeader(r.q.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("checkout", id)
		}
		return nil, err
	}

	if c.Attendees, err = r.attendees(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *checkoutRepository) FindInProgress(ctx context.Context, sessionID uuid.UUID, companyID, requesterID string) (*domain.CheckoutSession, error) {
	query := `
	SELECT id FROM checkout_sessions
	WHERE session_id = ? AND company_id = ? AND requester_id = ? AND status = ?
	ORDER BY created_at
	`

	var id uuid.UUID
	err := r.q.queryRow(ctx, query, sessionID, companyID, requesterID, domain.CheckoutInProgress).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *checkoutRepository) attendees(ctx context.Context, checkoutID uuid.UUID) ([]domain.Attendee, error) {
	query := `
	SELECT id, identity_id, first_name, last_name, email, special_requests, is_selected, is_waitlist
	FROM checkout_attendees
	WHERE checkout_id = ?
	ORDER BY ordinal
	`

	rows, err := r.q.query(ctx, query, checkoutID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var attendees []domain.Attendee
	for rows.Next() {
		var a domain.Attendee
		if err := rows.Scan(
			&a.ID,
			&a.IdentityID,
			&a.FirstName,
			&a.LastName,
			&a.Email,
			&a.SpecialRequests,
			&a.IsSelected,
			&a.IsWaitlist,
		); err != nil {
			return nil, err
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

func (r *checkoutRepository) Create(ctx context.Context, c *domain.CheckoutSession) error {
	query := `
	INSERT INTO checkout_sessions (` + checkoutColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	resultJSON, err := encodeResult(c.Result)
	if err != nil {
		return err
	}

	_, err = r.q.exec(ctx, query,
		c.ID,
		c.SessionID,
		c.CompanyID,
		c.RequesterID,
		c.Status,
		nullMillis(c.ReservationExpiresAt),
		c.HeldSeats,
		c.Contact.Name,
		c.Contact.Email,
		c.Contact.Phone,
		c.Contact.GroupNotes,
		c.Discounts.VoucherSeats,
		c.Discounts.DiscountCode,
		string(c.Discounts.DiscountType),
		c.Discounts.DiscountValue,
		string(c.Discounts.AdminDiscountType),
		c.Discounts.AdminDiscountValue,
		c.Discounts.AdminDiscountReason,
		c.Amount,
		nullString(c.ConfirmationNumber),
		c.Payment.Reference,
		c.Payment.CardLast4,
		c.Payment.CardType,
		resultJSON,
		nullMillis(c.FinalizedAt),
		c.Version,
		toMillis(c.CreatedAt),
		toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkout header: %w", err)
	}

	return r.insertAttendees(ctx, c)
}

func (r *checkoutRepository) insertAttendees(ctx context.Context, c *domain.CheckoutSession) error {
	queryItem := `
	INSERT INTO checkout_attendees (id, checkout_id, ordinal, identity_id, first_name, last_name, email, special_requests, is_selected, is_waitlist)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stmt, err := r.q.tx.PrepareContext(ctx, r.q.dialect.Rebind(queryItem))
	if err != nil {
		return fmt.Errorf("failed to prepare attendee statement: %w", err)
	}

	defer stmt.Close()

	for i, a := range c.Attendees {
		_, err := stmt.ExecContext(ctx, a.ID, c.ID, i, a.IdentityID, a.FirstName, a.LastName, a.Email, a.SpecialRequests, a.IsSelected, a.IsWaitlist)
		if err != nil {
			return fmt.Errorf("failed to insert attendee %s: %w", a.ID, err)
		}
	}
	return nil
}

// Update rewrites the header and the attendee list when checkout.Version
// still matches the stored row.
func (r *checkoutRepository) Update(ctx context.Context, c *domain.CheckoutSession) error {
	query := `
	UPDATE checkout_sessions
	SET status = ?,
		reservation_expires_at = ?,
		held_seats = ?,
		contact_name = ?,
		contact_email = ?,
		contact_phone = ?,
		group_notes = ?,
		voucher_seats = ?,
		discount_code = ?,
		discount_type = ?,
		discount_value = ?,
		admin_discount_type = ?,
		admin_discount_value = ?,
		admin_discount_reason = ?,
		amount = ?,
		confirmation_number = ?,
		payment_reference = ?,
		card_last4 = ?,
		card_type = ?,
		finalize_result = ?,
		finalized_at = ?,
		version = version + 1,
		updated_at = ?
	WHERE id = ? AND version = ?
	`

	resultJSON, err := encodeResult(c.Result)
	if err != nil {
		return err
	}

	ok, err := r.q.execCAS(ctx, query,
		c.Status,
		nullMillis(c.ReservationExpiresAt),
		c.HeldSeats,
		c.Contact.Name,
		c.Contact.Email,
		c.Contact.Phone,
		c.Contact.GroupNotes,
		c.Discounts.VoucherSeats,
		c.Discounts.DiscountCode,
		string(c.Discounts.DiscountType),
		c.Discounts.DiscountValue,
		string(c.Discounts.AdminDiscountType),
		c.Discounts.AdminDiscountValue,
		c.Discounts.AdminDiscountReason,
		c.Amount,
		nullString(c.ConfirmationNumber),
		c.Payment.Reference,
		c.Payment.CardLast4,
		c.Payment.CardType,
		resultJSON,
		nullMillis(c.FinalizedAt),
		toMillis(c.UpdatedAt),
		c.ID,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update checkout: %w", err)
	}
	if !ok {
		return domain.ErrVersionConflict
	}
	c.Version++

	if _, err := r.q.exec(ctx, `DELETE FROM checkout_attendees WHERE checkout_id = ?`, c.ID); err != nil {
		return fmt.Errorf("failed to clear attendees: %w", err)
	}
	return r.insertAttendees(ctx, c)
}

func (r *checkoutRepository) TransitionStatus(ctx context.Context, c *domain.CheckoutSession, status domain.CheckoutStatus, at time.Time) (bool, error) {
	query := `
	UPDATE checkout_sessions
	SET status = ?,
		version = version + 1,
		updated_at = ?
	WHERE id = ? AND status = ?
	`

	ok, err := r.q.execCAS(ctx, query, status, toMillis(at), c.ID, domain.CheckoutInProgress)
	if err != nil || !ok {
		return false, err
	}

	c.Status = status
	c.UpdatedAt = at
	c.Version++
	return true, nil
}

func (r *checkoutRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
	SELECT id FROM checkout_sessions
	WHERE status = ? AND reservation_expires_at < ?
	ORDER BY reservation_expires_at
	LIMIT ?
	`

	rows, err := r.q.query(ctx, query, domain.CheckoutInProgress, toMillis(now), limit)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *checkoutRepository) ConfirmationNumberExists(ctx context.Context, number string) (bool, error) {
	var found int
	err := r.q.queryRow(ctx, `SELECT 1 FROM checkout_sessions WHERE confirmation_number = ?`, number).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func encodeResult(result *domain.EnrollmentResult) (sql.NullString, error) {
	if result == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode finalize result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
