package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/config"
)

// SweepReport counts what one sweep removed or transitioned.
type SweepReport struct {
	ExpiredLocks  int64
	ExpiredTokens int64
	StaleDrafts   int64
	Completed     int64
}

// Sweeper reclaims abandoned state.  Every step is an idempotent delete or
// conditional update, so several sweepers may run at once.  Correctness
// never depends on it: expired locks are already ignored by every read.
type Sweeper struct {
	locks     LockStore
	tokens    UploadTokenStore
	bookings  BookingStore
	lifecycle *BookingService
	clock     clock.Clock
	policy    config.Policy
	log       *logrus.Logger
}

func NewSweeper(locks LockStore, tokens UploadTokenStore, bookings BookingStore, lifecycle *BookingService,
	clk clock.Clock, policy config.Policy, log *logrus.Logger) *Sweeper {
	return &Sweeper{locks: locks, tokens: tokens, bookings: bookings, lifecycle: lifecycle, clock: clk, policy: policy, log: log}
}

// Run sweeps once immediately and then every SweepInterval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.policy.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// SweepOnce runs every cleanup step.  A failing step is logged and the
// remaining steps still run.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepReport {
	var rep SweepReport
	now := s.clock.Now()

	if n, err := s.locks.DeleteExpired(ctx, now); err != nil {
		s.log.WithError(err).Warn("sweep expired locks failed")
	} else {
		rep.ExpiredLocks = n
	}
	if n, err := s.tokens.DeleteExpired(ctx, now); err != nil {
		s.log.WithError(err).Warn("sweep expired upload tokens failed")
	} else {
		rep.ExpiredTokens = n
	}
	if s.policy.StaleDraftAge > 0 {
		if n, err := s.bookings.DeleteStaleUnverified(ctx, now.Add(-s.policy.StaleDraftAge)); err != nil {
			s.log.WithError(err).Warn("sweep stale unverified bookings failed")
		} else {
			rep.StaleDrafts = n
		}
	}
	if s.lifecycle != nil {
		if n, err := s.lifecycle.CompletePastStays(ctx); err != nil {
			s.log.WithError(err).Warn("complete past stays failed")
		} else {
			rep.Completed = n
		}
	}

	if rep != (SweepReport{}) {
		s.log.WithFields(logrus.Fields{
			"expired_locks":  rep.ExpiredLocks,
			"expired_tokens": rep.ExpiredTokens,
			"stale_drafts":   rep.StaleDrafts,
			"completed":      rep.Completed,
		}).Info("sweep finished")
	}
	return rep
}
