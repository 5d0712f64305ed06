package domain

import (
	"time"

	"github.com/google/uuid"
)

type WaitlistState string

const (
	// WaitlistPending entries belong to a checkout that is still in progress.
	WaitlistPending WaitlistState = "pending"
	// WaitlistActive entries outlived a finalized checkout.
	WaitlistActive WaitlistState = "active"
)

type WaitlistEntry struct {
	ID         uuid.UUID     `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	CheckoutID uuid.NullUUID `json:"checkout_id"`
	AttendeeID uuid.NullUUID `json:"attendee_id"`
	CompanyID  string        `json:"company_id"`
	IdentityID string        `json:"identity_id,omitempty"`
	FirstName  string        `json:"first_name"`
	LastName   string        `json:"last_name"`
	Email      string        `json:"email"`
	Position   int           `json:"position"`
	SeatPrice  int64         `json:"seat_price"`
	State      WaitlistState `json:"state"`
	AddedAt    time.Time     `json:"added_at"`
}

// EntryFromAttendee builds a pending waitlist entry for an attendee of a
// checkout. Position is assigned on enqueue.
func EntryFromAttendee(c *CheckoutSession, a *Attendee, seatPrice int64, now time.Time) WaitlistEntry {
	return WaitlistEntry{
		ID:         uuid.New(),
		SessionID:  c.SessionID,
		CheckoutID: uuid.NullUUID{UUID: c.ID, Valid: true},
		AttendeeID: uuid.NullUUID{UUID: a.ID, Valid: true},
		CompanyID:  c.CompanyID,
		IdentityID: a.IdentityID,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		SeatPrice:  seatPrice,
		State:      WaitlistPending,
		AddedAt:    now,
	}
}
