package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/services"
)

func TestReserve_HoldsSeatsAndWaitlistsOverflow(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 2, 100)

	view := h.reserve(t, sessionID, "alice", 3, true)

	assert.Equal(t, domain.CheckoutInProgress, view.Status)
	assert.Equal(t, 2, view.HeldSeats)
	require.Len(t, view.Attendees, 3)
	assert.False(t, view.Attendees[0].IsWaitlist)
	assert.False(t, view.Attendees[1].IsWaitlist)
	assert.True(t, view.Attendees[2].IsWaitlist)
	assert.Equal(t, 1, view.Attendees[2].WaitlistPosition)
	assert.Equal(t, int64(200), view.Totals.Total)
	require.NotNil(t, view.ReservationExpiresAt)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *view.ReservationExpiresAt)

	a := h.availability(t, sessionID)
	assert.Equal(t, 2, a.HeldCount)
	assert.Equal(t, 0, a.Available)
	assert.Equal(t, 1, a.WaitlistLength)
}

func TestReserve_Fail_FullWithoutWaitlist(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 1, 100)
	h.reserve(t, sessionID, "alice", 1, false)

	_, err := h.checkouts.Reserve(context.Background(), services.ReserveRequest{
		SessionID:     sessionID,
		Requester:     requester("bob"),
		AttendeeCount: 1,
	})

	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, 1, h.availability(t, sessionID).HeldCount)
}

func TestReserve_Fail_PartialWithoutWaitlist(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 2, 100)

	_, err := h.checkouts.Reserve(context.Background(), services.ReserveRequest{
		SessionID:     sessionID,
		Requester:     requester("alice"),
		AttendeeCount: 3,
	})

	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 3, derr.Context["requested"])
	assert.Equal(t, 2, derr.Context["available"])

	a := h.availability(t, sessionID)
	assert.Equal(t, 0, a.HeldCount)
	assert.Equal(t, 2, a.Available)
	assert.Equal(t, 0, a.WaitlistLength)

	view := h.reserve(t, sessionID, "alice", 2, false)
	assert.Equal(t, 2, view.HeldSeats)
}

func TestReserve_Fail_Validation(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 5, 100)
	ctx := context.Background()

	_, err := h.checkouts.Reserve(ctx, services.ReserveRequest{SessionID: sessionID, Requester: requester("alice"), AttendeeCount: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.checkouts.Reserve(ctx, services.ReserveRequest{SessionID: sessionID, Requester: requester("alice"), AttendeeCount: 51})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.checkouts.Reserve(ctx, services.ReserveRequest{SessionID: uuid.New(), Requester: requester("alice"), AttendeeCount: 1})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestReserve_ReturnsOpenCheckoutForSameRequester(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 5, 100)

	first := h.reserve(t, sessionID, "alice", 2, false)
	second := h.reserve(t, sessionID, "alice", 4, false)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.HeldSeats)
	assert.Equal(t, 2, h.availability(t, sessionID).HeldCount)
}

func TestReserve_RenewsOverdueHoldNotYetSwept(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 5, 100)

	first := h.reserve(t, sessionID, "alice", 1, false)
	h.clock.Advance(20 * time.Minute)
	second := h.reserve(t, sessionID, "alice", 1, false)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.ReservationExpiresAt)
	assert.True(t, second.ReservationExpiresAt.After(h.clock.Now()))
}

func TestReserve_ConcurrentRequestersNeverOversell(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 2, 100)

	const requesters = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.checkouts.Reserve(context.Background(), services.ReserveRequest{
				SessionID:     sessionID,
				Requester:     requester(string(rune('a' + i))),
				AttendeeCount: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	for _, err := range failures {
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	}
	a := h.availability(t, sessionID)
	assert.Equal(t, 2, a.HeldCount)
	assert.Equal(t, 0, a.Available)
}

func TestReserve_ConcurrentOverflowGoesToWaitlist(t *testing.T) {
	for round := 0; round < 5; round++ {
		h := newHarness(t)
		sessionID := h.session(t, 2, 100)

		var wg sync.WaitGroup
		views := make([]*services.CheckoutView, 2)
		errs := make([]error, 2)
		for i, who := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(i int, who string) {
				defer wg.Done()
				views[i], errs[i] = h.checkouts.Reserve(context.Background(), services.ReserveRequest{
					SessionID:     sessionID,
					Requester:     requester(who),
					AttendeeCount: 2,
					AllowWaitlist: true,
				})
			}(i, who)
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		seated, waiting := views[0], views[1]
		if seated.HeldSeats == 0 {
			seated, waiting = waiting, seated
		}
		assert.Equal(t, 2, seated.HeldSeats)
		assert.Equal(t, 0, waiting.HeldSeats)
		require.Len(t, waiting.Attendees, 2)
		assert.Equal(t, 1, waiting.Attendees[0].WaitlistPosition)
		assert.Equal(t, 2, waiting.Attendees[1].WaitlistPosition)

		a := h.availability(t, sessionID)
		assert.Equal(t, 2, a.HeldCount)
		assert.Equal(t, 0, a.Available)
		assert.Equal(t, 2, a.WaitlistLength)
	}
}

func TestReserve_ConcurrentSameRequesterGetsOneCheckout(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 5, 100)

	const attempts = 6
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, attempts)
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := h.checkouts.Reserve(context.Background(), services.ReserveRequest{
				SessionID:     sessionID,
				Requester:     requester("alice"),
				AttendeeCount: 2,
			})
			errs[i] = err
			if err == nil {
				ids[i] = view.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	a := h.availability(t, sessionID)
	assert.Equal(t, 2, a.HeldCount)
	assert.Equal(t, 3, a.Available)
}

func TestResetReservationExpiration_KeepsHoldAlive(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 5, 100)
	view := h.reserve(t, sessionID, "alice", 1, false)

	h.clock.Advance(10 * time.Minute)
	reset, err := h.checkouts.ResetReservationExpiration(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *reset.ReservationExpiresAt)

	h.clock.Advance(10 * time.Minute)
	expired, err := h.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	got, err := h.checkouts.Get(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutInProgress, got.Status)
}

func TestSweeper_ExpiresOverdueCheckouts(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 3, 100)
	overdue := h.reserve(t, sessionID, "alice", 2, false)

	h.clock.Advance(16 * time.Minute)
	fresh := h.reserve(t, sessionID, "bob", 1, false)

	expired, err := h.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := h.checkouts.Get(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutExpired, got.Status)
	assert.Equal(t, 0, got.HeldSeats)
	assert.Equal(t, 1, h.availability(t, sessionID).HeldCount)

	_, err = h.finalizer.Finalize(context.Background(), overdue.ID, h.pay(overdue))
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	stillOpen, err := h.checkouts.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutInProgress, stillOpen.Status)
}

func TestCancel_ReleasesSeatsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 3, 100)
	ctx := context.Background()

	target := h.reserve(t, sessionID, "alice", 2, false)
	h.reserve(t, sessionID, "bob", 1, false)

	require.NoError(t, h.checkouts.Cancel(ctx, target.ID))
	require.NoError(t, h.checkouts.Cancel(ctx, target.ID))

	h.clock.Advance(time.Hour)
	won, err := h.checkouts.Expire(ctx, target.ID)
	require.NoError(t, err)
	assert.False(t, won)

	assert.Equal(t, 1, h.availability(t, sessionID).HeldCount)

	got, err := h.checkouts.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutCancelled, got.Status)
}

func TestCancelAndExpireRace_ReleaseOnce(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 3, 100)
	ctx := context.Background()

	target := h.reserve(t, sessionID, "alice", 2, false)
	h.clock.Advance(16 * time.Minute)
	h.reserve(t, sessionID, "bob", 1, false)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- h.checkouts.Cancel(ctx, target.ID)
		}()
		go func() {
			defer wg.Done()
			_, err := h.checkouts.Expire(ctx, target.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, h.availability(t, sessionID).HeldCount)

	got, err := h.checkouts.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.Contains(t, []domain.CheckoutStatus{domain.CheckoutCancelled, domain.CheckoutExpired}, got.Status)
}

func TestCancel_Fail_Finalized(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 3, 100)
	view := h.name(t, h.reserve(t, sessionID, "alice", 1, false), "alice")

	_, err := h.finalizer.Finalize(context.Background(), view.ID, h.pay(view))
	require.NoError(t, err)

	err = h.checkouts.Cancel(context.Background(), view.ID)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, 1, h.availability(t, sessionID).EnrolledCount)
}

func TestUpdateCheckout_ReconcilesAttendees(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 3, 100)
	ctx := context.Background()
	view := h.reserve(t, sessionID, "alice", 2, true)

	first, second := view.Attendees[0].ID, view.Attendees[1].ID
	updated, err := h.checkouts.UpdateCheckout(ctx, view.ID, services.UpdateCheckoutRequest{
		Contact: domain.Contact{Name: "Alice", Email: "alice@example.com"},
		Attendees: []services.AttendeeInput{
			{ID: &first, FirstName: "Ann", Email: "ann@example.com", IsSelected: true},
			{ID: &second, FirstName: "Ben", Email: "ben@example.com", IsSelected: true},
			{FirstName: "Cat", Email: "cat@example.com", IsSelected: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.HeldSeats)
	assert.Equal(t, int64(300), updated.Totals.Total)
	assert.Equal(t, "Alice", updated.Contact.Name)
	assert.Equal(t, first, updated.Attendees[0].ID)
	assert.Equal(t, "Ann", updated.Attendees[0].FirstName)

	third := updated.Attendees[2].ID
	updated, err = h.checkouts.UpdateCheckout(ctx, view.ID, services.UpdateCheckoutRequest{
		Attendees: []services.AttendeeInput{
			{ID: &first, FirstName: "Ann", Email: "ann@example.com", IsSelected: false},
			{ID: &second, FirstName: "Ben", Email: "ben@example.com", IsSelected: true},
			{ID: &third, FirstName: "Cat", Email: "cat@example.com", IsSelected: true},
			{FirstName: "Dan", Email: "dan@example.com", IsSelected: true},
			{FirstName: "Eve", Email: "eve@example.com", IsSelected: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.HeldSeats)
	assert.False(t, updated.Attendees[0].IsSelected)
	assert.False(t, updated.Attendees[3].IsWaitlist)
	assert.True(t, updated.Attendees[4].IsWaitlist)
	assert.Equal(t, 1, updated.Attendees[4].WaitlistPosition)

	a := h.availability(t, sessionID)
	assert.Equal(t, 3, a.HeldCount)
	assert.Equal(t, 1, a.WaitlistLength)

	updated, err = h.checkouts.UpdateCheckout(ctx, view.ID, services.UpdateCheckoutRequest{
		Attendees: []services.AttendeeInput{
			{ID: &second, FirstName: "Ben", Email: "ben@example.com", IsSelected: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.HeldSeats)
	assert.Len(t, updated.Attendees, 1)

	a = h.availability(t, sessionID)
	assert.Equal(t, 1, a.HeldCount)
	assert.Equal(t, 0, a.WaitlistLength)
}

func TestUpdateCheckout_Fail_EmailRules(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 5, 100)
	ctx := context.Background()

	enrolled := h.name(t, h.reserve(t, sessionID, "alice", 1, false), "alice")
	_, err := h.finalizer.Finalize(ctx, enrolled.ID, h.pay(enrolled))
	require.NoError(t, err)

	view := h.reserve(t, sessionID, "bob", 2, false)

	tests := []struct {
		name      string
		attendees []services.AttendeeInput
	}{
		{"duplicate within checkout", []services.AttendeeInput{
			{Email: "same@example.com", IsSelected: true},
			{Email: "SAME@example.com", IsSelected: true},
		}},
		{"malformed", []services.AttendeeInput{{Email: "not-an-email", IsSelected: true}}},
		{"already enrolled", []services.AttendeeInput{{Email: enrolled.Attendees[0].Email, IsSelected: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.checkouts.UpdateCheckout(ctx, view.ID, services.UpdateCheckoutRequest{Attendees: tt.attendees})
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	got, err := h.checkouts.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.HeldSeats)
}

func TestUpdateAttendeeWaitlist_MovesBothWays(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 2, 100)
	ctx := context.Background()
	view := h.reserve(t, sessionID, "alice", 2, false)
	attendeeID := view.Attendees[1].ID

	moved, err := h.checkouts.UpdateAttendeeWaitlist(ctx, view.ID, attendeeID, services.MoveToWaitlist)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.HeldSeats)
	assert.True(t, moved.Attendees[1].IsWaitlist)
	assert.Equal(t, 1, moved.Attendees[1].WaitlistPosition)
	assert.Equal(t, int64(100), moved.Totals.Total)

	back, err := h.checkouts.UpdateAttendeeWaitlist(ctx, view.ID, attendeeID, services.MoveToEnrolled)
	require.NoError(t, err)
	assert.Equal(t, 2, back.HeldSeats)
	assert.False(t, back.Attendees[1].IsWaitlist)
	assert.Equal(t, 0, h.availability(t, sessionID).WaitlistLength)

	_, err = h.checkouts.UpdateAttendeeWaitlist(ctx, view.ID, attendeeID, services.MoveToWaitlist)
	require.NoError(t, err)
	h.reserve(t, sessionID, "bob", 1, false)

	_, err = h.checkouts.UpdateAttendeeWaitlist(ctx, view.ID, attendeeID, services.MoveToEnrolled)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	_, err = h.checkouts.UpdateAttendeeWaitlist(ctx, view.ID, uuid.New(), services.MoveToEnrolled)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestReplaceAttendee_ChecksIdentityAndCapabilities(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 5, 100, "employee")
	ctx := context.Background()
	require.NoError(t, h.catalog.PutIdentity(ctx, domain.Identity{
		ID: "u-1", CompanyID: "acme", FirstName: "Jane", LastName: "Doe", Email: "jane@acme.test", Capabilities: []string{"employee"},
	}))

	view := h.reserve(t, sessionID, "alice", 1, false)
	attendeeID := view.Attendees[0].ID

	replaced, err := h.checkouts.ReplaceAttendee(ctx, view.ID, attendeeID, domain.IdentityRef{IdentityID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "Jane", replaced.Attendees[0].FirstName)
	assert.Equal(t, "jane@acme.test", replaced.Attendees[0].Email)
	assert.Equal(t, "u-1", replaced.Attendees[0].IdentityID)

	_, err = h.checkouts.ReplaceAttendee(ctx, view.ID, attendeeID, domain.IdentityRef{Email: "guest@example.com", FirstName: "Guest"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.checkouts.ReplaceAttendee(ctx, view.ID, attendeeID, domain.IdentityRef{IdentityID: "u-404"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.checkouts.ReplaceAttendee(ctx, view.ID, attendeeID, domain.IdentityRef{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReplaceAttendee_UpdatesWaitlistEntry(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 1, 100)
	ctx := context.Background()
	view := h.reserve(t, sessionID, "alice", 2, true)

	_, err := h.checkouts.ReplaceAttendee(ctx, view.ID, view.Attendees[1].ID, domain.IdentityRef{Email: "guest@example.com", FirstName: "Guest"})
	require.NoError(t, err)

	entries, err := h.waitlist.List(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "guest@example.com", entries[0].Email)
	assert.Equal(t, "Guest", entries[0].FirstName)
}

func TestApplyDiscounts_PricesInStages(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 10, 100)
	ctx := context.Background()
	require.NoError(t, h.catalog.SetVoucherBalance(ctx, "acme", 5))
	require.NoError(t, h.catalog.PutDiscount(ctx, domain.Discount{Code: "SAVE20", Type: domain.DiscountFixedAmount, Value: 20, Active: true}))

	view := h.name(t, h.reserve(t, sessionID, "alice", 3, false), "alice")
	admin := requester("alice", domain.CapabilityAdminDiscount)

	priced, err := h.checkouts.ApplyDiscounts(ctx, view.ID, admin, services.DiscountRequest{
		VoucherSeats:        1,
		DiscountCode:        "save20",
		AdminDiscountType:   domain.DiscountFixedAmount,
		AdminDiscountValue:  10,
		AdminDiscountReason: "loyal customer",
	})
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", priced.Discounts.DiscountCode)
	assert.Equal(t, int64(300), priced.Totals.Base)
	assert.Equal(t, int64(170), priced.Totals.Total)

	result, err := h.finalizer.Finalize(ctx, view.ID, h.pay(priced))
	require.NoError(t, err)
	assert.Equal(t, int64(170), result.Amount)
}

func TestApplyDiscounts_Fail(t *testing.T) {
	h := newHarness(t)
	sessionID := h.session(t, 10, 100)
	ctx := context.Background()
	expired := h.clock.Now().Add(-time.Hour)
	require.NoError(t, h.catalog.SetVoucherBalance(ctx, "acme", 1))
	require.NoError(t, h.catalog.PutDiscount(ctx, domain.Discount{Code: "OLD", Type: domain.DiscountPercentage, Value: 10, Active: true, EndsAt: &expired}))

	view := h.reserve(t, sessionID, "alice", 2, false)

	tests := []struct {
		name      string
		requester domain.Requester
		req       services.DiscountRequest
	}{
		{"admin discount without capability", requester("alice"), services.DiscountRequest{AdminDiscountType: domain.DiscountFixedAmount, AdminDiscountValue: 10, AdminDiscountReason: "x"}},
		{"admin discount without reason", requester("alice", domain.CapabilityAdminDiscount), services.DiscountRequest{AdminDiscountType: domain.DiscountFixedAmount, AdminDiscountValue: 10}},
		{"admin percentage above 100", requester("alice", domain.CapabilityAdminDiscount), services.DiscountRequest{AdminDiscountType: domain.DiscountPercentage, AdminDiscountValue: 101, AdminDiscountReason: "x"}},
		{"more vouchers than attendees", requester("alice"), services.DiscountRequest{VoucherSeats: 3}},
		{"more vouchers than balance", requester("alice"), services.DiscountRequest{VoucherSeats: 2}},
		{"unknown code", requester("alice"), services.DiscountRequest{DiscountCode: "NOPE"}},
		{"expired code", requester("alice"), services.DiscountRequest{DiscountCode: "OLD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.checkouts.ApplyDiscounts(ctx, view.ID, tt.requester, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
