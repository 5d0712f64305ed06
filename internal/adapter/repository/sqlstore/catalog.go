package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/database"
)

// Catalog serves the read-only collaborators of the engine from the same
// database: session metadata, identities, discount codes and voucher
// balances.
type Catalog struct {
	db *database.DB
}

func NewCatalog(db *database.DB) *Catalog {
	return &Catalog{db: db}
}

var (
	_ ports.EventDirectory   = (*Catalog)(nil)
	_ ports.IdentityProvider = (*Catalog)(nil)
	_ ports.DiscountCatalog  = (*Catalog)(nil)
)

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Catalog) GetSession(ctx context.Context, id uuid.UUID) (*domain.SessionInfo, error) {
	query := `
	SELECT id, name, unit_price, max_enrollments, is_virtual_only, required_capabilities
	FROM session_catalog
	WHERE id = ?
	`

	var info domain.SessionInfo
	var required string
	err := c.db.QueryRowContext(ctx, c.db.Rebind(query), id).Scan(
		&info.ID,
		&info.Name,
		&info.UnitPrice,
		&info.MaxEnrollments,
		&info.IsVirtualOnly,
		&required,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("session", id)
		}
		return nil, err
	}

	info.RequiredCapabilities = splitList(required)
	return &info, nil
}

func (c *Catalog) Resolve(ctx context.Context, companyID string, ref domain.IdentityRef) (*domain.Identity, error) {
	query := `
	SELECT id, company_id, first_name, last_name, email, capabilities
	FROM identities
	WHERE company_id = ? AND `

	var arg string
	switch {
	case strings.TrimSpace(ref.IdentityID) != "":
		query += `id = ?`
		arg = strings.TrimSpace(ref.IdentityID)
	case strings.TrimSpace(ref.Email) != "":
		query += `LOWER(email) = LOWER(?)`
		arg = strings.TrimSpace(ref.Email)
	default:
		return nil, nil
	}

	var identity domain.Identity
	var capabilities string
	err := c.db.QueryRowContext(ctx, c.db.Rebind(query), companyID, arg).Scan(
		&identity.ID,
		&identity.CompanyID,
		&identity.FirstName,
		&identity.LastName,
		&identity.Email,
		&capabilities,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	identity.Capabilities = splitList(capabilities)
	return &identity, nil
}

func (c *Catalog) LookupDiscount(ctx context.Context, code string) (*domain.Discount, error) {
	query := `
	SELECT code, session_id, discount_type, discount_value, active, starts_at, ends_at, max_uses, uses
	FROM discount_codes
	WHERE LOWER(code) = LOWER(?)
	`

	var d domain.Discount
	var discountType string
	var startsAt, endsAt sql.NullInt64
	err := c.db.QueryRowContext(ctx, c.db.Rebind(query), strings.TrimSpace(code)).Scan(
		&d.Code,
		&d.SessionID,
		&discountType,
		&d.Value,
		&d.Active,
		&startsAt,
		&endsAt,
		&d.MaxUses,
		&d.Uses,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	d.Type = domain.DiscountType(discountType)
	d.StartsAt = timeFromNull(startsAt)
	d.EndsAt = timeFromNull(endsAt)
	return &d, nil
}

func (c *Catalog) VoucherBalance(ctx context.Context, companyID string) (int, error) {
	var seats int
	err := c.db.QueryRowContext(ctx, c.db.Rebind(`SELECT seats FROM voucher_balances WHERE company_id = ?`), companyID).Scan(&seats)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seats, err
}

// replace deletes the row matching key and inserts it again in one
// transaction, which works the same on every supported dialect.
func (c *Catalog) replace(ctx context.Context, table, keyColumn string, key any, insert string, args ...any) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, c.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, keyColumn)), key); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, c.db.Rebind(insert), args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return tx.Commit()
}

func (c *Catalog) PutSession(ctx context.Context, info domain.SessionInfo) error {
	return c.replace(ctx, "session_catalog", "id", info.ID, `
	INSERT INTO session_catalog (id, name, unit_price, max_enrollments, is_virtual_only, required_capabilities)
	VALUES (?, ?, ?, ?, ?, ?)
	`, info.ID, info.Name, info.UnitPrice, info.MaxEnrollments, info.IsVirtualOnly, strings.Join(info.RequiredCapabilities, ","))
}

func (c *Catalog) PutIdentity(ctx context.Context, identity domain.Identity) error {
	return c.replace(ctx, "identities", "id", identity.ID, `
	INSERT INTO identities (id, company_id, first_name, last_name, email, capabilities)
	VALUES (?, ?, ?, ?, ?, ?)
	`, identity.ID, identity.CompanyID, identity.FirstName, identity.LastName, identity.Email, strings.Join(identity.Capabilities, ","))
}

func (c *Catalog) PutDiscount(ctx context.Context, d domain.Discount) error {
	return c.replace(ctx, "discount_codes", "code", d.Code, `
	INSERT INTO discount_codes (code, session_id, discount_type, discount_value, active, starts_at, ends_at, max_uses, uses)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Code, d.SessionID, string(d.Type), d.Value, d.Active, nullMillis(d.StartsAt), nullMillis(d.EndsAt), d.MaxUses, d.Uses)
}

func (c *Catalog) SetVoucherBalance(ctx context.Context, companyID string, seats int) error {
	return c.replace(ctx, "voucher_balances", "company_id", companyID, `
	INSERT INTO voucher_balances (company_id, seats) VALUES (?, ?)
	`, companyID, seats)
}
