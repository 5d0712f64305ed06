package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// EventSession holds the seat counters of one scheduled session. Only the
// capacity ledger mutates them.
type EventSession struct {
	ID             uuid.UUID
	MaxEnrollments int
	EnrolledCount  int
	HeldCount      int
	IsVirtualOnly  bool
	Version        int
	UpdatedAt      time.Time
}

func (s *EventSession) IsUnlimited() bool {
	return s.MaxEnrollments <= 0
}

// Available returns the number of seats that can still be held.
func (s *EventSession) Available() int {
	if s.IsUnlimited() {
		return math.MaxInt32
	}
	free := s.MaxEnrollments - s.EnrolledCount - s.HeldCount
	if free < 0 {
		return 0
	}
	return free
}

// SessionInfo is the read-only session metadata owned by the event directory.
type SessionInfo struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	UnitPrice            int64     `json:"unit_price"`
	MaxEnrollments       int       `json:"max_enrollments"`
	IsVirtualOnly        bool      `json:"is_virtual_only"`
	RequiredCapabilities []string  `json:"required_capabilities,omitempty"`
}

type Availability struct {
	SessionID      uuid.UUID `json:"session_id"`
	MaxEnrollments int       `json:"max_enrollments"`
	EnrolledCount  int       `json:"enrolled_count"`
	HeldCount      int       `json:"held_count"`
	Available      int       `json:"available"`
	Unlimited      bool      `json:"unlimited"`
	WaitlistLength int       `json:"waitlist_length"`
}
