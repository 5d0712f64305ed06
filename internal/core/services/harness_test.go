package services_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/session_reservation/internal/adapter/repository/sqlstore"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/core/services"
	"github.com/srgjo27/session_reservation/internal/platform/database"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires the engine to a sqlite database in a temp dir.
type harness struct {
	store     ports.Store
	catalog   *sqlstore.Catalog
	checkouts *services.CheckoutService
	waitlist  *services.WaitlistManager
	finalizer *services.CheckoutFinalizer
	sweeper   *services.Sweeper
	clock     *fakeClock
	settings  services.Settings
}

func newHarness(t *testing.T, configure ...func(*services.Settings)) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Driver:          database.SQLite,
		SQLitePath:      filepath.Join(t.TempDir(), "engine.db"),
		ConnectAttempts: 1,
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, db))

	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	settings := services.DefaultSettings()
	settings.Clock = clock.Now
	settings.Retry = services.RetryPolicy{MaxTries: 20, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	for _, fn := range configure {
		fn(&settings)
	}

	return buildHarness(sqlstore.New(db), sqlstore.NewCatalog(db), clock, settings, nil, nil)
}

func buildHarness(store ports.Store, catalog *sqlstore.Catalog, clock *fakeClock, settings services.Settings, cache ports.AvailabilityCache, publisher ports.EventPublisher) *harness {
	log := logger.NewNop()
	ledger := services.NewCapacityLedger(catalog, settings)
	finalizer := services.NewCheckoutFinalizer(store, ledger, catalog, catalog, cache, publisher, settings, log)
	waitlist := services.NewWaitlistManager(store, ledger, finalizer, catalog, cache, publisher, settings, log)
	checkouts := services.NewCheckoutService(store, ledger, waitlist, catalog, catalog, catalog, cache, settings, log)

	return &harness{
		store:     store,
		catalog:   catalog,
		checkouts: checkouts,
		waitlist:  waitlist,
		finalizer: finalizer,
		sweeper:   services.NewSweeper(checkouts, time.Minute, 50, log),
		clock:     clock,
		settings:  settings,
	}
}

func (h *harness) session(t *testing.T, maxEnrollments int, unitPrice int64, required ...string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, h.catalog.PutSession(context.Background(), domain.SessionInfo{
		ID:                   id,
		Name:                 "Session " + id.String()[:8],
		UnitPrice:            unitPrice,
		MaxEnrollments:       maxEnrollments,
		RequiredCapabilities: required,
	}))
	return id
}

func requester(id string, capabilities ...string) domain.Requester {
	return domain.Requester{CompanyID: "acme", RequesterID: id, Capabilities: capabilities}
}

func (h *harness) reserve(t *testing.T, sessionID uuid.UUID, who string, count int, allowWaitlist bool) *services.CheckoutView {
	t.Helper()
	view, err := h.checkouts.Reserve(context.Background(), services.ReserveRequest{
		SessionID:     sessionID,
		Requester:     requester(who),
		AttendeeCount: count,
		AllowWaitlist: allowWaitlist,
	})
	require.NoError(t, err)
	return view
}

func (h *harness) availability(t *testing.T, sessionID uuid.UUID) *domain.Availability {
	t.Helper()
	a, err := h.checkouts.Availability(context.Background(), sessionID)
	require.NoError(t, err)
	return a
}

func (h *harness) pay(view *services.CheckoutView) domain.PaymentResult {
	return domain.PaymentResult{
		Succeeded: true,
		Amount:    view.Totals.Total,
		Reference: "pay_" + view.ID.String()[:8],
		CardLast4: "4242",
		CardType:  "visa",
	}
}

// name fills in attendee details so emails are unique across the session.
func (h *harness) name(t *testing.T, view *services.CheckoutView, prefix string) *services.CheckoutView {
	t.Helper()
	attendees := make([]services.AttendeeInput, 0, len(view.Attendees))
	for i, a := range view.Attendees {
		id := a.ID
		attendees = append(attendees, services.AttendeeInput{
			ID:         &id,
			FirstName:  prefix,
			LastName:   string(rune('A' + i)),
			Email:      prefix + string(rune('a'+i)) + "@example.com",
			IsSelected: a.IsSelected,
		})
	}
	updated, err := h.checkouts.UpdateCheckout(context.Background(), view.ID, services.UpdateCheckoutRequest{Attendees: attendees})
	require.NoError(t, err)
	return updated
}

func waitlistIDs(entries []domain.WaitlistEntry) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func positions(entries []domain.WaitlistEntry) []int {
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Position)
	}
	return out
}
