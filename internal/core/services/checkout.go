package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

type MoveTarget string

const (
	MoveToEnrolled MoveTarget = "enrolled"
	MoveToWaitlist MoveTarget = "waitlist"
)

type ReserveRequest struct {
	SessionID     uuid.UUID
	Requester     domain.Requester
	AttendeeCount int
	// AllowWaitlist sends seats that do not fit to the waitlist. Without it
	// a full session fails with a capacity error.
	AllowWaitlist bool
	Contact       domain.Contact
}

type AttendeeInput struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	IdentityID      string     `json:"identity_id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	SpecialRequests string     `json:"special_requests"`
	IsSelected      bool       `json:"is_selected"`
}

type UpdateCheckoutRequest struct {
	Contact   domain.Contact  `json:"contact"`
	Attendees []AttendeeInput `json:"attendees"`
}

type DiscountRequest struct {
	VoucherSeats        int                 `json:"voucher_seats"`
	DiscountCode        string              `json:"discount_code"`
	AdminDiscountType   domain.DiscountType `json:"admin_discount_type"`
	AdminDiscountValue  int64               `json:"admin_discount_value"`
	AdminDiscountReason string              `json:"admin_discount_reason"`
}

// CheckoutService drives the checkout lifecycle: reserve, update, expire,
// cancel. Finalization lives in CheckoutFinalizer.
type CheckoutService struct {
	engine
	ledger     *CapacityLedger
	waitlist   *WaitlistManager
	directory  ports.EventDirectory
	identities ports.IdentityProvider
	discounts  ports.DiscountCatalog
}

func NewCheckoutService(
	store ports.Store,
	ledger *CapacityLedger,
	waitlist *WaitlistManager,
	directory ports.EventDirectory,
	identities ports.IdentityProvider,
	discounts ports.DiscountCatalog,
	cache ports.AvailabilityCache,
	settings Settings,
	log *logger.Logger,
) *CheckoutService {
	return &CheckoutService{
		engine: engine{
			store:     store,
			cache:     cache,
			publisher: waitlist.publisher,
			settings:  settings,
			log:       log.With("component", "checkout"),
		},
		ledger:     ledger,
		waitlist:   waitlist,
		directory:  directory,
		identities: identities,
		discounts:  discounts,
	}
}

// state is what a transaction hands back for building a view.
type state struct {
	checkout *domain.CheckoutSession
	entries  []domain.WaitlistEntry
}

func (s *CheckoutService) snapshot(ctx context.Context, tx ports.Tx, checkoutID uuid.UUID) (*state, error) {
	c, err := tx.Checkouts().Get(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	entries, err := tx.Waitlist().ListByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	return &state{checkout: c, entries: entries}, nil
}

func (s *CheckoutService) view(st *state, info *domain.SessionInfo) *CheckoutView {
	return newCheckoutView(st.checkout, st.entries, info.UnitPrice)
}

func inProgress(c *domain.CheckoutSession) error {
	if c.Status != domain.CheckoutInProgress {
		return domain.SessionExpired(c.ID, c.Status)
	}
	return nil
}

// Reserve holds seats for a new checkout, or returns the requester's open
// checkout for the session unchanged.
func (s *CheckoutService) Reserve(ctx context.Context, req ReserveRequest) (*CheckoutView, error) {
	if req.AttendeeCount < 1 || req.AttendeeCount > s.settings.MaxAttendees {
		return nil, domain.Validation("attendee count is out of range").
			With("min", 1).
			With("max", s.settings.MaxAttendees)
	}
	if strings.TrimSpace(req.Requester.CompanyID) == "" || strings.TrimSpace(req.Requester.RequesterID) == "" {
		return nil, domain.Validation("requester is required")
	}

	info, err := s.directory.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	var st *state
	err = s.run(ctx, "reserve checkout", func(ctx context.Context, tx ports.Tx) error {
		now := s.now()

		existing, err := tx.Checkouts().FindInProgress(ctx, req.SessionID, req.Requester.CompanyID, req.Requester.RequesterID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Its seats are still held until the sweeper gets to it, so an
			// overdue hold is simply renewed.
			if existing.IsExpiredAt(now) {
				expires := now.Add(s.settings.ReservationTTL)
				existing.ReservationExpiresAt = &expires
				existing.UpdatedAt = now
				if err := tx.Checkouts().Update(ctx, existing); err != nil {
					return err
				}
			}
			st, err = s.snapshot(ctx, tx, existing.ID)
			return err
		}

		granted, overflow, err := s.ledger.Reserve(ctx, tx, req.SessionID, req.AttendeeCount, !req.AllowWaitlist)
		if err != nil {
			return err
		}
		// Without the waitlist fallback the request is all or nothing.
		if !req.AllowWaitlist && overflow > 0 {
			return domain.CapacityExceeded(req.SessionID, req.AttendeeCount, granted)
		}

		expires := now.Add(s.settings.ReservationTTL)
		c := &domain.CheckoutSession{
			ID:                   uuid.New(),
			SessionID:            req.SessionID,
			CompanyID:            req.Requester.CompanyID,
			RequesterID:          req.Requester.RequesterID,
			Status:               domain.CheckoutInProgress,
			ReservationExpiresAt: &expires,
			HeldSeats:            granted,
			Contact:              req.Contact,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		for i := 0; i < granted+overflow; i++ {
			c.Attendees = append(c.Attendees, domain.Attendee{
				ID:         uuid.New(),
				IsSelected: true,
				IsWaitlist: i >= granted,
			})
		}
		if err := tx.Checkouts().Create(ctx, c); err != nil {
			return err
		}

		for i := range c.Attendees {
			if !c.Attendees[i].IsWaitlist {
				continue
			}
			entry := domain.EntryFromAttendee(c, &c.Attendees[i], info.UnitPrice, now)
			if _, err := s.waitlist.Enqueue(ctx, tx, &entry); err != nil {
				return err
			}
		}

		st, err = s.snapshot(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, req.SessionID)
	s.log.Info("checkout reserved",
		"checkout_id", st.checkout.ID.String(),
		"session_id", req.SessionID.String(),
		"held_seats", st.checkout.HeldSeats,
		"waitlisted", len(st.entries),
	)
	return s.view(st, info), nil
}

func (s *CheckoutService) Get(ctx context.Context, checkoutID uuid.UUID) (*CheckoutView, error) {
	var st *state
	err := s.run(ctx, "get checkout", func(ctx context.Context, tx ports.Tx) error {
		var err error
		st, err = s.snapshot(ctx, tx, checkoutID)
		return err
	})
	if err != nil {
		return nil, err
	}

	info, err := s.directory.GetSession(ctx, st.checkout.SessionID)
	if err != nil {
		return nil, err
	}
	return s.view(st, info), nil
}

// mutate loads an in-progress checkout, applies fn and persists the result.
// When fn reports released seats they are offered to the waitlist in the
// same transaction, after the checkout itself is saved.
func (s *CheckoutService) mutate(ctx context.Context, op string, checkoutID uuid.UUID, fn func(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, info *domain.SessionInfo) (bool, error)) (*CheckoutView, error) {
	var (
		st       *state
		info     *domain.SessionInfo
		promoted []Promotion
	)
	err := s.run(ctx, op, func(ctx context.Context, tx ports.Tx) error {
		promoted = nil

		c, err := tx.Checkouts().Get(ctx, checkoutID)
		if err != nil {
			return err
		}
		if err := inProgress(c); err != nil {
			return err
		}

		info, err = s.directory.GetSession(ctx, c.SessionID)
		if err != nil {
			return err
		}

		released, err := fn(ctx, tx, c, info)
		if err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := tx.Checkouts().Update(ctx, c); err != nil {
			return err
		}

		if released {
			if promoted, err = s.waitlist.fill(ctx, tx, c.SessionID); err != nil {
				return err
			}
		}

		st, err = s.snapshot(ctx, tx, checkoutID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.waitlist.announce(ctx, promoted)
	s.invalidate(ctx, st.checkout.SessionID)
	return s.view(st, info), nil
}

// ResetReservationExpiration extends the hold to now plus the reservation
// TTL.
func (s *CheckoutService) ResetReservationExpiration(ctx context.Context, checkoutID uuid.UUID) (*CheckoutView, error) {
	return s.mutate(ctx, "reset reservation expiration", checkoutID, func(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, _ *domain.SessionInfo) (bool, error) {
		expires := s.now().Add(s.settings.ReservationTTL)
		c.ReservationExpiresAt = &expires
		return false, nil
	})
}

// UpdateAttendeeWaitlist moves one selected attendee between holding a seat
// and waiting for one.
func (s *CheckoutService) UpdateAttendeeWaitlist(ctx context.Context, checkoutID, attendeeID uuid.UUID, moveTo MoveTarget) (*CheckoutView, error) {
	if moveTo != MoveToEnrolled && moveTo != MoveToWaitlist {
		return nil, domain.Validation("move_to must be enrolled or waitlist")
	}

	return s.mutate(ctx, "update attendee waitlist", checkoutID, func(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, info *domain.SessionInfo) (bool, error) {
		attendee := c.Attendee(attendeeID)
		if attendee == nil {
			return false, domain.NotFound("attendee", attendeeID)
		}
		if !attendee.IsSelected {
			return false, domain.Validation("attendee is not selected")
		}

		switch {
		case moveTo == MoveToWaitlist && !attendee.IsWaitlist:
			if _, err := s.waitlist.Demote(ctx, tx, c, attendee, info.UnitPrice); err != nil {
				return false, err
			}
			return true, nil
		case moveTo == MoveToEnrolled && attendee.IsWaitlist:
			entry, err := tx.Waitlist().FindByAttendee(ctx, attendee.ID)
			if err != nil {
				return false, err
			}
			if _, _, err := s.ledger.Reserve(ctx, tx, c.SessionID, 1, true); err != nil {
				return false, err
			}
			if entry != nil {
				if _, err := s.waitlist.Dequeue(ctx, tx, entry.ID); err != nil {
					return false, err
				}
			}
			attendee.IsWaitlist = false
			c.HeldSeats++
		}
		return false, nil
	})
}

// ReplaceAttendee puts a different person in an attendee's place. The seat
// or waitlist position is kept.
func (s *CheckoutService) ReplaceAttendee(ctx context.Context, checkoutID, attendeeID uuid.UUID, ref domain.IdentityRef) (*CheckoutView, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "replace attendee", checkoutID, func(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, info *domain.SessionInfo) (bool, error) {
		attendee := c.Attendee(attendeeID)
		if attendee == nil {
			return false, domain.NotFound("attendee", attendeeID)
		}

		identity, err := resolveIdentity(ctx, s.identities, c.CompanyID, ref, info)
		if err != nil {
			return false, err
		}
		if err := s.checkEmail(ctx, tx, c, identity.Email, attendee.ID); err != nil {
			return false, err
		}

		attendee.IdentityID = identity.ID
		attendee.FirstName = identity.FirstName
		attendee.LastName = identity.LastName
		attendee.Email = identity.Email

		if !attendee.IsWaitlist {
			return false, nil
		}
		return false, s.syncEntry(ctx, tx, attendee)
	})
}

// syncEntry copies an attendee's identity onto its waitlist entry.
func (s *CheckoutService) syncEntry(ctx context.Context, tx ports.Tx, attendee *domain.Attendee) error {
	entry, err := tx.Waitlist().FindByAttendee(ctx, attendee.ID)
	if err != nil || entry == nil {
		return err
	}
	entry.IdentityID = attendee.IdentityID
	entry.FirstName = attendee.FirstName
	entry.LastName = attendee.LastName
	entry.Email = attendee.Email
	return tx.Waitlist().UpdateIdentity(ctx, entry)
}

func (s *CheckoutService) checkEmail(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, email string, attendeeID uuid.UUID) error {
	if c.HasEmail(email, attendeeID) {
		return domain.Validation("attendee emails must be unique within a checkout").With("email", email)
	}
	taken, err := emailTaken(ctx, tx, c.SessionID, email, c.ID)
	if err != nil {
		return err
	}
	if taken {
		return domain.Validation("attendee is already enrolled or waitlisted for this session").With("email", email)
	}
	return nil
}

// UpdateCheckout replaces the contact details and attendee list. Attendees
// are matched to existing ones by id, then by email; the rest are new.
// Attendees that disappear or become unselected give up their seat or
// waitlist entry; newly selected ones take free seats in order and wait for
// the rest.
func (s *CheckoutService) UpdateCheckout(ctx context.Context, checkoutID uuid.UUID, req UpdateCheckoutRequest) (*CheckoutView, error) {
	if len(req.Attendees) == 0 || len(req.Attendees) > s.settings.MaxAttendees {
		return nil, domain.Validation("attendee count is out of range").
			With("min", 1).
			With("max", s.settings.MaxAttendees)
	}

	seen := make(map[string]bool, len(req.Attendees))
	for _, in := range req.Attendees {
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if email == "" {
			continue
		}
		if err := domain.ValidateEmail(email); err != nil {
			return nil, err
		}
		if seen[email] {
			return nil, domain.Validation("attendee emails must be unique within a checkout").With("email", in.Email)
		}
		seen[email] = true
	}

	return s.mutate(ctx, "update checkout", checkoutID, func(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, info *domain.SessionInfo) (bool, error) {
		for _, in := range req.Attendees {
			if strings.TrimSpace(in.Email) == "" {
				continue
			}
			taken, err := emailTaken(ctx, tx, c.SessionID, in.Email, c.ID)
			if err != nil {
				return false, err
			}
			if taken {
				return false, domain.Validation("attendee is already enrolled or waitlisted for this session").With("email", in.Email)
			}
		}

		byID := make(map[uuid.UUID]int, len(c.Attendees))
		byEmail := make(map[string]int, len(c.Attendees))
		for i, a := range c.Attendees {
			byID[a.ID] = i
			if e := strings.ToLower(strings.TrimSpace(a.Email)); e != "" {
				byEmail[e] = i
			}
		}

		used := make(map[int]bool, len(c.Attendees))
		next := make([]domain.Attendee, 0, len(req.Attendees))
		needsSeat := make([]int, 0, len(req.Attendees))
		toRelease := 0

		for _, in := range req.Attendees {
			idx := -1
			if in.ID != nil {
				if i, ok := byID[*in.ID]; ok && !used[i] {
					idx = i
				}
			}
			if idx < 0 {
				if i, ok := byEmail[strings.ToLower(strings.TrimSpace(in.Email))]; ok && !used[i] {
					idx = i
				}
			}

			var a domain.Attendee
			if idx >= 0 {
				used[idx] = true
				a = c.Attendees[idx]
			} else {
				a = domain.Attendee{ID: uuid.New()}
			}
			wasSeated, wasWaiting := idx >= 0 && a.HoldsSeat(), idx >= 0 && a.IsSelected && a.IsWaitlist

			a.IdentityID = strings.TrimSpace(in.IdentityID)
			a.FirstName = strings.TrimSpace(in.FirstName)
			a.LastName = strings.TrimSpace(in.LastName)
			a.Email = strings.TrimSpace(in.Email)
			a.SpecialRequests = in.SpecialRequests
			a.IsSelected = in.IsSelected

			switch {
			case !in.IsSelected && wasSeated:
				toRelease++
				a.IsWaitlist = false
			case !in.IsSelected && wasWaiting:
				if err := s.dropEntry(ctx, tx, a.ID); err != nil {
					return false, err
				}
				a.IsWaitlist = false
			case in.IsSelected && wasWaiting:
				if err := s.syncEntry(ctx, tx, &a); err != nil {
					return false, err
				}
			case in.IsSelected && !wasSeated && !wasWaiting:
				needsSeat = append(needsSeat, len(next))
			}
			next = append(next, a)
		}

		for i, a := range c.Attendees {
			if used[i] {
				continue
			}
			if a.HoldsSeat() {
				toRelease++
			} else if a.IsSelected && a.IsWaitlist {
				if err := s.dropEntry(ctx, tx, a.ID); err != nil {
					return false, err
				}
			}
		}

		if toRelease > 0 {
			if err := s.ledger.Release(ctx, tx, c.SessionID, toRelease); err != nil {
				return false, err
			}
		}

		granted := 0
		if len(needsSeat) > 0 {
			var err error
			granted, _, err = s.ledger.Reserve(ctx, tx, c.SessionID, len(needsSeat), false)
			if err != nil {
				return false, err
			}
		}

		c.Attendees = next
		c.Contact = req.Contact
		for n, idx := range needsSeat {
			c.Attendees[idx].IsWaitlist = n >= granted
		}
		c.HeldSeats = c.SeatedCount()

		for n, idx := range needsSeat {
			if n < granted {
				continue
			}
			entry := domain.EntryFromAttendee(c, &c.Attendees[idx], info.UnitPrice, s.now())
			if _, err := s.waitlist.Enqueue(ctx, tx, &entry); err != nil {
				return false, err
			}
		}
		return toRelease > 0, nil
	})
}

func (s *CheckoutService) dropEntry(ctx context.Context, tx ports.Tx, attendeeID uuid.UUID) error {
	entry, err := tx.Waitlist().FindByAttendee(ctx, attendeeID)
	if err != nil || entry == nil {
		return err
	}
	_, err = s.waitlist.Dequeue(ctx, tx, entry.ID)
	return err
}

// ApplyDiscounts validates and stores voucher, discount code and admin
// discount selections.
func (s *CheckoutService) ApplyDiscounts(ctx context.Context, checkoutID uuid.UUID, requester domain.Requester, req DiscountRequest) (*CheckoutView, error) {
	if req.VoucherSeats < 0 {
		return nil, domain.Validation("voucher seats cannot be negative")
	}
	if req.AdminDiscountValue < 0 {
		return nil, domain.Validation("admin discount cannot be negative")
	}
	if req.AdminDiscountValue > 0 {
		if !requester.Can(domain.CapabilityAdminDiscount) {
			return nil, domain.Validation("admin discounts require the admin discount capability")
		}
		switch req.AdminDiscountType {
		case domain.DiscountFixedAmount:
		case domain.DiscountPercentage:
			if req.AdminDiscountValue > 100 {
				return nil, domain.Validation("admin discount percentage cannot exceed 100")
			}
		default:
			return nil, domain.Validation("admin discount type must be percentage or fixed_amount")
		}
		if strings.TrimSpace(req.AdminDiscountReason) == "" {
			return nil, domain.Validation("admin discount reason is required")
		}
	}

	return s.mutate(ctx, "apply discounts", checkoutID, func(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession, _ *domain.SessionInfo) (bool, error) {
		if req.VoucherSeats > c.SeatedCount() {
			return false, domain.Validation("voucher seats exceed the number of paid attendees")
		}
		if req.VoucherSeats > 0 {
			balance, err := s.discounts.VoucherBalance(ctx, c.CompanyID)
			if err != nil {
				return false, err
			}
			if req.VoucherSeats > balance {
				return false, domain.Validation("not enough voucher seats available").
					With("requested", req.VoucherSeats).
					With("available", balance)
			}
		}

		d := domain.Discounts{
			VoucherSeats:        req.VoucherSeats,
			AdminDiscountType:   req.AdminDiscountType,
			AdminDiscountValue:  req.AdminDiscountValue,
			AdminDiscountReason: strings.TrimSpace(req.AdminDiscountReason),
		}
		if req.AdminDiscountValue == 0 {
			d.AdminDiscountType = ""
			d.AdminDiscountReason = ""
		}

		if code := strings.TrimSpace(req.DiscountCode); code != "" {
			discount, err := s.discounts.LookupDiscount(ctx, code)
			if err != nil {
				return false, err
			}
			if discount == nil {
				return false, domain.Validation("unknown discount code").With("code", code)
			}
			if err := discount.UsableAt(c.SessionID, s.now()); err != nil {
				return false, err
			}
			d.DiscountCode = discount.Code
			d.DiscountType = discount.Type
			d.DiscountValue = discount.Value
		}

		c.Discounts = d
		return false, nil
	})
}

// Cancel abandons the checkout. Cancelling a checkout that already expired
// or was cancelled is a no-op.
func (s *CheckoutService) Cancel(ctx context.Context, checkoutID uuid.UUID) error {
	won, sessionID, err := s.terminate(ctx, "cancel checkout", checkoutID, domain.CheckoutCancelled)
	if err != nil {
		return err
	}
	if won {
		s.invalidate(ctx, sessionID)
		s.log.Info("checkout cancelled", "checkout_id", checkoutID.String())
	}
	return nil
}

// Expire moves an overdue checkout to expired and releases its hold. It
// reports false when another actor got there first or the hold was extended.
func (s *CheckoutService) Expire(ctx context.Context, checkoutID uuid.UUID) (bool, error) {
	won, sessionID, err := s.terminate(ctx, "expire checkout", checkoutID, domain.CheckoutExpired)
	if err != nil {
		return false, err
	}
	if won {
		s.invalidate(ctx, sessionID)
	}
	return won, nil
}

func (s *CheckoutService) ListExpired(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.run(ctx, "list expired checkouts", func(ctx context.Context, tx ports.Tx) error {
		var err error
		ids, err = tx.Checkouts().ListExpired(ctx, s.now(), limit)
		return err
	})
	return ids, err
}

// terminate performs the in-progress compare-and-set. Only the winner
// releases the hold, so the seats are given back exactly once.
func (s *CheckoutService) terminate(ctx context.Context, op string, checkoutID uuid.UUID, to domain.CheckoutStatus) (bool, uuid.UUID, error) {
	var (
		won       bool
		sessionID uuid.UUID
		promoted  []Promotion
	)
	err := s.run(ctx, op, func(ctx context.Context, tx ports.Tx) error {
		won, promoted = false, nil

		c, err := tx.Checkouts().Get(ctx, checkoutID)
		if err != nil {
			return err
		}
		sessionID = c.SessionID

		if c.Status != domain.CheckoutInProgress {
			return settled(c, to)
		}
		now := s.now()
		if to == domain.CheckoutExpired && !c.IsExpiredAt(now) {
			return nil
		}

		ok, err := tx.Checkouts().TransitionStatus(ctx, c, to, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.Checkouts().Get(ctx, checkoutID)
			if err != nil {
				return err
			}
			return settled(current, to)
		}

		if err := s.release(ctx, tx, c); err != nil {
			return err
		}
		won = true

		promoted, err = s.waitlist.fill(ctx, tx, c.SessionID)
		return err
	})
	if err != nil {
		return false, sessionID, err
	}
	s.waitlist.announce(ctx, promoted)
	return won, sessionID, nil
}

// settled decides what a caller that lost the race sees. Only a cancel of a
// finalized checkout is an error.
func settled(c *domain.CheckoutSession, to domain.CheckoutStatus) error {
	if to == domain.CheckoutCancelled && c.Status == domain.CheckoutFinalized {
		return domain.SessionExpired(c.ID, c.Status)
	}
	return nil
}

// release gives back the checkout's held seats and drops its pending
// waitlist entries.
func (s *CheckoutService) release(ctx context.Context, tx ports.Tx, c *domain.CheckoutSession) error {
	if err := s.ledger.Release(ctx, tx, c.SessionID, c.HeldSeats); err != nil {
		return err
	}

	entries, err := tx.Waitlist().ListByCheckout(ctx, c.ID)
	if err != nil {
		return err
	}
	// Highest position first so earlier positions stay valid while the tail
	// is renumbered.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position > entries[j].Position })
	for _, e := range entries {
		if e.State != domain.WaitlistPending {
			continue
		}
		if _, err := s.waitlist.Dequeue(ctx, tx, e.ID); err != nil {
			return err
		}
	}

	c.HeldSeats = 0
	c.UpdatedAt = s.now()
	return tx.Checkouts().Update(ctx, c)
}

// Availability returns the session's seat counters, served from the cache
// when possible.
func (s *CheckoutService) Availability(ctx context.Context, sessionID uuid.UUID) (*domain.Availability, error) {
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			s.log.Warn("availability cache read failed", "session_id", sessionID.String(), "error", err)
		} else if cached != nil {
			return cached, nil
		}

		// Taken before the read so an invalidation racing with it keeps the
		// result out of the cache.
		generation, err = s.cache.Generation(ctx, sessionID)
		if err != nil {
			s.log.Warn("availability cache read failed", "session_id", sessionID.String(), "error", err)
		} else {
			cacheable = true
		}
	}

	var availability *domain.Availability
	err := s.run(ctx, "read availability", func(ctx context.Context, tx ports.Tx) error {
		session, err := s.ledger.Snapshot(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		waiting, err := tx.Waitlist().Count(ctx, sessionID)
		if err != nil {
			return err
		}
		availability = &domain.Availability{
			SessionID:      sessionID,
			MaxEnrollments: session.MaxEnrollments,
			EnrolledCount:  session.EnrolledCount,
			HeldCount:      session.HeldCount,
			Available:      session.Available(),
			Unlimited:      session.IsUnlimited(),
			WaitlistLength: waiting,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, availability, generation); err != nil {
			s.log.Warn("availability cache write failed", "session_id", sessionID.String(), "error", err)
		}
	}
	return availability, nil
}

var _ ports.CheckoutExpirer = (*CheckoutService)(nil)
