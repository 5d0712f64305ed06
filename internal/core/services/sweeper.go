package services

import (
	"context"
	"sync"
	"time"

	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

// Sweeper expires overdue checkouts in the background.
type Sweeper struct {
	expirer   ports.CheckoutExpirer
	interval  time.Duration
	batchSize int
	log       *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(expirer ports.CheckoutExpirer, interval time.Duration, batchSize int, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		expirer:   expirer,
		interval:  interval,
		batchSize: batchSize,
		log:       log.With("component", "sweeper"),
	}
}

// Run blocks until ctx is done, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("checkout sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("checkout sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error("sweep failed", "error", err)
			}
		}
	}
}

// Start runs the sweep loop in the background until ctx is done or Stop is
// called. Starting a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Stop halts a started sweeper and waits for an in-flight sweep to finish.
// It is safe to call more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce expires one batch of overdue checkouts and returns how many it
// expired. A failure on one checkout does not stop the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ids, err := s.expirer.ListExpired(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s.log.Debug("expiring checkouts", "count", len(ids))

	expired := 0
	for _, id := range ids {
		ok, err := s.expirer.Expire(ctx, id)
		if err != nil {
			s.log.Warn("failed to expire checkout", "checkout_id", id.String(), "error", err)
			continue
		}
		if ok {
			expired++
			s.log.Info("checkout expired and seats released", "checkout_id", id.String())
		}
	}
	return expired, nil
}
