package domain

import (
	"time"

	"github.com/google/uuid"
)

type Enrollment struct {
	ID         uuid.UUID     `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	CheckoutID uuid.NullUUID `json:"checkout_id"`
	CompanyID  string        `json:"company_id"`
	IdentityID string        `json:"identity_id,omitempty"`
	FirstName  string        `json:"first_name"`
	LastName   string        `json:"last_name"`
	Email      string        `json:"email"`
	EnrolledAt time.Time     `json:"enrolled_at"`
}

// EnrollmentResult is recorded once per finalized checkout and returned
// verbatim on repeated finalize calls.
type EnrollmentResult struct {
	CheckoutID         uuid.UUID       `json:"checkout_id"`
	SessionID          uuid.UUID       `json:"session_id"`
	ConfirmationNumber string          `json:"confirmation_number"`
	Amount             int64           `json:"amount"`
	FinalizedAt        time.Time       `json:"finalized_at"`
	Enrollments        []Enrollment    `json:"enrollments"`
	Waitlisted         []WaitlistEntry `json:"waitlisted"`
}

type CheckoutFinalizedEvent struct {
	CheckoutID         string `json:"checkout_id"`
	SessionID          string `json:"session_id"`
	CompanyID          string `json:"company_id"`
	ConfirmationNumber string `json:"confirmation_number"`
	Amount             int64  `json:"amount"`
	EnrolledCount      int    `json:"enrolled_count"`
	WaitlistedCount    int    `json:"waitlisted_count"`
	FinalizedAt        string `json:"finalized_at"`
}

type WaitlistPromotedEvent struct {
	SessionID  string `json:"session_id"`
	EntryID    string `json:"entry_id"`
	CheckoutID string `json:"checkout_id,omitempty"`
	Email      string `json:"email"`
	Outcome    string `json:"outcome"`
	PromotedAt string `json:"promoted_at"`
}
