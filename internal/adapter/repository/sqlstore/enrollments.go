package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

type enrollmentRepository struct {
	q *querier
}

const enrollmentColumns = `id, session_id, checkout_id, company_id, identity_id, first_name, last_name, email, enrolled_at`

func scanEnrollment(row interface{ Scan(...any) error }) (*domain.Enrollment, error) {
	var e domain.Enrollment
	var enrolledAt int64

	if err := row.Scan(
		&e.ID,
		&e.SessionID,
		&e.CheckoutID,
		&e.CompanyID,
		&e.IdentityID,
		&e.FirstName,
		&e.LastName,
		&e.Email,
		&enrolledAt,
	); err != nil {
		return nil, err
	}

	e.EnrolledAt = fromMillis(enrolledAt)
	return &e, nil
}

func (r *enrollmentRepository) Insert(ctx context.Context, e *domain.Enrollment) error {
	query := `
	INSERT INTO enrollments (` + enrollmentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.exec(ctx, query,
		e.ID,
		e.SessionID,
		e.CheckoutID,
		e.CompanyID,
		e.IdentityID,
		e.FirstName,
		e.LastName,
		e.Email,
		toMillis(e.EnrolledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

func (r *enrollmentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	e, err := scanEnrollment(r.q.queryRow(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("enrollment", id)
		}
		return nil, err
	}
	return e, nil
}

func (r *enrollmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := r.q.execCAS(ctx, `DELETE FROM enrollments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound("enrollment", id)
	}
	return nil
}

func (r *enrollmentRepository) UpdateAttendee(ctx context.Context, e *domain.Enrollment) error {
	query := `
	UPDATE enrollments
	SET identity_id = ?, first_name = ?, last_name = ?, email = ?
	WHERE id = ?
	`

	_, err := r.q.exec(ctx, query, e.IdentityID, e.FirstName, e.LastName, e.Email, e.ID)
	return err
}

func (r *enrollmentRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Enrollment, error) {
	rows, err := r.q.query(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE session_id = ? ORDER BY enrolled_at, id`, sessionID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var enrollments []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, *e)
	}
	return enrollments, rows.Err()
}

func (r *enrollmentRepository) EmailExists(ctx context.Context, sessionID uuid.UUID, email string) (bool, error) {
	var n int
	err := r.q.queryRow(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE session_id = ? AND LOWER(email) = LOWER(?)`,
		sessionID, email,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
