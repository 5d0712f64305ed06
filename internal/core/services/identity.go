package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
)

// resolveIdentity finds who ref points at within the company and checks the
// session's required capabilities. An unknown email is accepted as a guest
// using the names supplied in ref.
func resolveIdentity(ctx context.Context, provider ports.IdentityProvider, companyID string, ref domain.IdentityRef, info *domain.SessionInfo) (*domain.Identity, error) {
	identity, err := provider.Resolve(ctx, companyID, ref)
	if err != nil {
		return nil, err
	}

	if identity == nil {
		if strings.TrimSpace(ref.IdentityID) != "" {
			return nil, domain.Validation("identity not found").With("identity_id", ref.IdentityID)
		}
		identity = &domain.Identity{CompanyID: companyID}
	}

	if identity.Email == "" {
		identity.Email = strings.TrimSpace(ref.Email)
	}
	if identity.FirstName == "" {
		identity.FirstName = strings.TrimSpace(ref.FirstName)
	}
	if identity.LastName == "" {
		identity.LastName = strings.TrimSpace(ref.LastName)
	}

	if missing := identity.MissingCapabilities(info.RequiredCapabilities); len(missing) > 0 {
		return nil, domain.Validation("attendee does not meet the session requirements").
			With("missing_capabilities", missing)
	}
	return identity, nil
}

// emailTaken reports whether email is enrolled in the session or waitlisted
// outside the given checkout.
func emailTaken(ctx context.Context, tx ports.Tx, sessionID uuid.UUID, email string, checkoutID uuid.UUID) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, nil
	}

	enrolled, err := tx.Enrollments().EmailExists(ctx, sessionID, email)
	if err != nil || enrolled {
		return enrolled, err
	}
	return tx.Waitlist().EmailExists(ctx, sessionID, email, checkoutID)
}
