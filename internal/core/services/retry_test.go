package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/srgjo27/session_reservation/internal/core/domain"
)

func fastPolicy(tries uint) RetryPolicy {
	return RetryPolicy{MaxTries: tries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryRecoversFromConflicts(t *testing.T) {
	calls := 0
	err := fastPolicy(5).do(context.Background(), "reserve", func() error {
		calls++
		if calls < 3 {
			return domain.ErrVersionConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpWithConcurrentModification(t *testing.T) {
	calls := 0
	err := fastPolicy(3).do(context.Background(), "reserve", func() error {
		calls++
		return domain.ErrVersionConflict
	})

	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRepeatDomainErrors(t *testing.T) {
	calls := 0
	capacity := domain.CapacityExceeded(uuid.New(), 1, 0)
	err := fastPolicy(5).do(context.Background(), "reserve", func() error {
		calls++
		return capacity
	})

	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, 1, calls)
}

func TestRetryPassesPlainErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	err := fastPolicy(5).do(context.Background(), "reserve", func() error { return boom })

	assert.ErrorIs(t, err, boom)
}
