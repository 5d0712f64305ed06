package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/core/ports/mocks"
)

// takenNumbers reports every confirmation number as already issued.
type takenNumbers struct {
	ports.CheckoutRepository
	lookups int
}

func (r *takenNumbers) ConfirmationNumberExists(context.Context, string) (bool, error) {
	r.lookups++
	return true, nil
}

func TestConfirmationNumber_ExhaustedIsRetried(t *testing.T) {
	repo := &takenNumbers{}
	tx := mocks.NewTx(t)
	tx.On("Checkouts").Return(repo)
	f := &CheckoutFinalizer{}

	_, err := f.confirmationNumber(context.Background(), tx)
	require.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, maxConfirmationAttempts, repo.lookups)

	err = fastPolicy(3).do(context.Background(), "finalize checkout", func() error {
		_, err := f.confirmationNumber(context.Background(), tx)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, 4*maxConfirmationAttempts, repo.lookups)
}
