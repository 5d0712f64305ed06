// Package sqlstore persists the reservation engine in postgres, mysql or
// sqlite through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/srgjo27/session_reservation/internal/adapter/repository/sqlstore/migrations"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/database"
)

type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *database.DB) error {
	return database.ApplyMigrations(ctx, db, migrations.FS, ".")
}

// WithinTx runs fn in one transaction. Conflicts between concurrent
// transactions surface as domain.ErrVersionConflict so callers can retry.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}

	defer sqlTx.Rollback()

	if err := fn(ctx, &txRepos{q: &querier{tx: sqlTx, dialect: s.db.Dialect}}); err != nil {
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrVersionConflict) {
		return err
	}
	if database.IsRetryable(err) {
		return fmt.Errorf("%w: %v", domain.ErrVersionConflict, err)
	}
	return err
}

type querier struct {
	tx      *sql.Tx
	dialect database.Dialect
}

func (q *querier) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.tx.ExecContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *querier) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.tx.QueryContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *querier) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.tx.QueryRowContext(ctx, q.dialect.Rebind(query), args...)
}

// execCAS runs a guarded update and reports whether it matched a row.
func (q *querier) execCAS(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := q.exec(ctx, query, args...)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

type txRepos struct {
	q *querier
}

func (t *txRepos) Sessions() ports.SessionRepository {
	return &sessionRepository{q: t.q}
}

func (t *txRepos) Checkouts() ports.CheckoutRepository {
	return &checkoutRepository{q: t.q}
}

func (t *txRepos) Waitlist() ports.WaitlistRepository {
	return &waitlistRepository{q: t.q}
}

func (t *txRepos) Enrollments() ports.EnrollmentRepository {
	return &enrollmentRepository{q: t.q}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func timeFromNull(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
