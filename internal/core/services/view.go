package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
)

type AttendeeView struct {
	ID               uuid.UUID `json:"id"`
	IdentityID       string    `json:"identity_id,omitempty"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	SpecialRequests  string    `json:"special_requests,omitempty"`
	IsSelected       bool      `json:"is_selected"`
	IsWaitlist       bool      `json:"is_waitlist"`
	WaitlistPosition int       `json:"waitlist_position,omitempty"`
}

// CheckoutView is the authoritative state returned by every checkout
// operation.
type CheckoutView struct {
	ID                   uuid.UUID             `json:"id"`
	SessionID            uuid.UUID             `json:"session_id"`
	Status               domain.CheckoutStatus `json:"status"`
	ReservationExpiresAt *time.Time            `json:"reservation_expires_at"`
	HeldSeats            int                   `json:"held_seats"`
	Contact              domain.Contact        `json:"contact"`
	Attendees            []AttendeeView        `json:"attendees"`
	Discounts            domain.Discounts      `json:"discounts"`
	Totals               Totals                `json:"totals"`
	ConfirmationNumber   string                `json:"confirmation_number,omitempty"`
	FinalizedAt          *time.Time            `json:"finalized_at,omitempty"`
}

func newCheckoutView(c *domain.CheckoutSession, entries []domain.WaitlistEntry, unitPrice int64) *CheckoutView {
	positions := make(map[uuid.UUID]int, len(entries))
	for _, e := range entries {
		if e.AttendeeID.Valid {
			positions[e.AttendeeID.UUID] = e.Position
		}
	}

	attendees := make([]AttendeeView, 0, len(c.Attendees))
	for _, a := range c.Attendees {
		attendees = append(attendees, AttendeeView{
			ID:               a.ID,
			IdentityID:       a.IdentityID,
			FirstName:        a.FirstName,
			LastName:         a.LastName,
			Email:            a.Email,
			SpecialRequests:  a.SpecialRequests,
			IsSelected:       a.IsSelected,
			IsWaitlist:       a.IsWaitlist,
			WaitlistPosition: positions[a.ID],
		})
	}

	totals := TotalsFor(c, unitPrice)
	if c.Status == domain.CheckoutFinalized {
		totals.Total = c.Amount
	}

	return &CheckoutView{
		ID:                   c.ID,
		SessionID:            c.SessionID,
		Status:               c.Status,
		ReservationExpiresAt: c.ReservationExpiresAt,
		HeldSeats:            c.HeldSeats,
		Contact:              c.Contact,
		Attendees:            attendees,
		Discounts:            c.Discounts,
		Totals:               totals,
		ConfirmationNumber:   c.ConfirmationNumber,
		FinalizedAt:          c.FinalizedAt,
	}
}
