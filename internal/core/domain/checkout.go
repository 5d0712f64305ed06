package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type CheckoutStatus string

const (
	CheckoutInProgress CheckoutStatus = "in_progress"
	CheckoutFinalized  CheckoutStatus = "finalized"
	CheckoutExpired    CheckoutStatus = "expired"
	CheckoutCancelled  CheckoutStatus = "cancelled"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s != CheckoutInProgress
}

type Contact struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	GroupNotes string `json:"group_notes"`
}

type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Discounts are the reductions applied to a checkout. Percentage values are
// whole percents; fixed amounts are minor units. They are resolved against
// the running subtotal at pricing time.
type Discounts struct {
	VoucherSeats        int          `json:"voucher_seats"`
	DiscountCode        string       `json:"discount_code,omitempty"`
	DiscountType        DiscountType `json:"discount_type,omitempty"`
	DiscountValue       int64        `json:"discount_value"`
	AdminDiscountType   DiscountType `json:"admin_discount_type,omitempty"`
	AdminDiscountValue  int64        `json:"admin_discount_value"`
	AdminDiscountReason string       `json:"admin_discount_reason,omitempty"`
}

type Attendee struct {
	ID              uuid.UUID
	IdentityID      string
	FirstName       string
	LastName        string
	Email           string
	SpecialRequests string
	IsSelected      bool
	IsWaitlist      bool
}

// HoldsSeat reports whether the attendee counts toward the checkout's hold.
func (a *Attendee) HoldsSeat() bool {
	return a.IsSelected && !a.IsWaitlist
}

type Payment struct {
	Reference string
	CardLast4 string
	CardType  string
}

type CheckoutSession struct {
	ID                   uuid.UUID
	SessionID            uuid.UUID
	CompanyID            string
	RequesterID          string
	Status               CheckoutStatus
	ReservationExpiresAt *time.Time
	HeldSeats            int
	Contact              Contact
	Attendees            []Attendee
	Discounts            Discounts
	Amount               int64
	ConfirmationNumber   string
	Payment              Payment
	Result               *EnrollmentResult
	FinalizedAt          *time.Time
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (c *CheckoutSession) IsExpiredAt(now time.Time) bool {
	return c.ReservationExpiresAt != nil && c.ReservationExpiresAt.Before(now)
}

func (c *CheckoutSession) Attendee(id uuid.UUID) *Attendee {
	for i := range c.Attendees {
		if c.Attendees[i].ID == id {
			return &c.Attendees[i]
		}
	}
	return nil
}

// SeatedCount is the number of attendees currently holding a seat.
func (c *CheckoutSession) SeatedCount() int {
	n := 0
	for i := range c.Attendees {
		if c.Attendees[i].HoldsSeat() {
			n++
		}
	}
	return n
}

// HasEmail reports whether another attendee of the checkout uses email.
func (c *CheckoutSession) HasEmail(email string, except uuid.UUID) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, a := range c.Attendees {
		if a.ID != except && strings.EqualFold(strings.TrimSpace(a.Email), email) {
			return true
		}
	}
	return false
}

// PaymentResult is what the payment collaborator reports for a checkout.
type PaymentResult struct {
	Succeeded     bool   `json:"succeeded"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
	CardLast4     string `json:"card_last4"`
	CardType      string `json:"card_type"`
	FailureReason string `json:"failure_reason,omitempty"`
}
