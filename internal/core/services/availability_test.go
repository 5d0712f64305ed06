package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/session_reservation/internal/core/domain"
)

// memoryAvailability keeps the generation guard of the redis cache in memory.
type memoryAvailability struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]*domain.Availability
	generations map[uuid.UUID]int64
	beforeSet   func()
}

func newMemoryAvailability() *memoryAvailability {
	return &memoryAvailability{
		entries:     make(map[uuid.UUID]*domain.Availability),
		generations: make(map[uuid.UUID]int64),
	}
}

func (m *memoryAvailability) Get(_ context.Context, sessionID uuid.UUID) (*domain.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[sessionID], nil
}

func (m *memoryAvailability) Generation(_ context.Context, sessionID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[sessionID], nil
}

func (m *memoryAvailability) Set(_ context.Context, a *domain.Availability, generation int64) error {
	if hook := m.beforeSet; hook != nil {
		m.beforeSet = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[a.SessionID] == generation {
		m.entries[a.SessionID] = a
	}
	return nil
}

func (m *memoryAvailability) Invalidate(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[sessionID]++
	delete(m.entries, sessionID)
	return nil
}

func TestAvailability_ReadRacingWithReserveIsNotCached(t *testing.T) {
	base := newHarness(t)
	memory := newMemoryAvailability()
	h := buildHarness(base.store, base.catalog, base.clock, base.settings, memory, nil)
	sessionID := h.session(t, 2, 100)

	// The reserve commits and invalidates after the counters were read but
	// before they are written back.
	memory.beforeSet = func() { h.reserve(t, sessionID, "alice", 1, false) }
	stale := h.availability(t, sessionID)
	assert.Equal(t, 2, stale.Available)

	fresh := h.availability(t, sessionID)
	assert.Equal(t, 1, fresh.Available)
	assert.Equal(t, 1, fresh.HeldCount)

	cached, err := memory.Get(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 1, cached.Available)
}
