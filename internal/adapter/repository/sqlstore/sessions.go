package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

type sessionRepository struct {
	q *querier
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.EventSession, error) {
	query := `
	SELECT id, max_enrollments, enrolled_count, held_count, is_virtual_only, version, updated_at
	FROM event_sessions
	WHERE id = ?
	`

	var session domain.EventSession
	var updatedAt int64
	err := r.q.queryRow(ctx, query, id).Scan(
		&session.ID,
		&session.MaxEnrollments,
		&session.EnrolledCount,
		&session.HeldCount,
		&session.IsVirtualOnly,
		&session.Version,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("event session", id)
		}
		return nil, err
	}

	session.UpdatedAt = fromMillis(updatedAt)
	return &session, nil
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.EventSession) error {
	query := `
	INSERT INTO event_sessions (id, max_enrollments, enrolled_count, held_count, is_virtual_only, version, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.exec(ctx, query,
		session.ID,
		session.MaxEnrollments,
		session.EnrolledCount,
		session.HeldCount,
		session.IsVirtualOnly,
		session.Version,
		toMillis(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event session: %w", err)
	}
	return nil
}

func (r *sessionRepository) UpdateCounters(ctx context.Context, session *domain.EventSession) error {
	query := `
	UPDATE event_sessions
	SET enrolled_count = ?,
		held_count = ?,
		version = version + 1,
		updated_at = ?
	WHERE id = ? AND version = ?
	`

	ok, err := r.q.execCAS(ctx, query,
		session.EnrolledCount,
		session.HeldCount,
		toMillis(session.UpdatedAt),
		session.ID,
		session.Version,
	)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrVersionConflict
	}

	session.Version++
	return nil
}
