package domain

import (
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	CapabilityAdminDiscount = "admin_discount"
	CapabilityWaitlistAdmin = "waitlist_admin"
)

// Requester is the authenticated caller.
type Requester struct {
	CompanyID    string
	RequesterID  string
	Capabilities []string
}

func (r Requester) Can(capability string) bool {
	return slices.Contains(r.Capabilities, capability)
}

// Identity is a resolved person from the identity provider.
type Identity struct {
	ID           string
	CompanyID    string
	FirstName    string
	LastName     string
	Email        string
	Capabilities []string
}

// MissingCapabilities returns the required capabilities the identity lacks.
func (i *Identity) MissingCapabilities(required []string) []string {
	var missing []string
	for _, c := range required {
		if !slices.Contains(i.Capabilities, c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// IdentityRef selects who an attendee or enrollment should become. When
// IdentityID is empty the person is matched by email, falling back to the
// supplied names as a guest.
type IdentityRef struct {
	IdentityID string `json:"identity_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
}

func (r IdentityRef) Validate() error {
	if strings.TrimSpace(r.IdentityID) == "" && strings.TrimSpace(r.Email) == "" {
		return Validation("identity id or email is required")
	}
	if strings.TrimSpace(r.Email) != "" {
		return ValidateEmail(r.Email)
	}
	return nil
}

// ValidateEmail accepts a bare address such as jane@example.com.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return Validation("invalid email address").With("email", email)
	}
	return nil
}

// Discount is a catalog discount code and its validity window.
type Discount struct {
	Code      string
	SessionID uuid.NullUUID
	Type      DiscountType
	Value     int64
	Active    bool
	StartsAt  *time.Time
	EndsAt    *time.Time
	MaxUses   int
	Uses      int
}

// UsableAt validates the discount for a session at a point in time.
func (d *Discount) UsableAt(sessionID uuid.UUID, now time.Time) error {
	switch {
	case !d.Active:
		return Validation("discount code is not active")
	case d.StartsAt != nil && now.Before(*d.StartsAt):
		return Validation("discount code is not valid yet")
	case d.EndsAt != nil && now.After(*d.EndsAt):
		return Validation("discount code has expired")
	case d.SessionID.Valid && d.SessionID.UUID != sessionID:
		return Validation("discount code is not valid for this session")
	case d.MaxUses > 0 && d.Uses >= d.MaxUses:
		return Validation("discount code has reached its usage limit")
	}
	return nil
}
