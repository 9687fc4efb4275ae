package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/config"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/repository"
)

// LockRequest asks for an exclusive claim on a room for a range.  A zero TTL
// means the tenant's configured lifetime.
type LockRequest struct {
	RoomID   uint64
	HolderID string
	Range    model.DateRange
	TTL      time.Duration
}

// LockResult is the typed answer of Acquire.  A denial is a normal result:
// Reason says why and HeldUntil tells the guest when to try again.
type LockResult struct {
	Granted   bool
	Refreshed bool
	ExpiresAt time.Time
	Reason    Kind
	HeldUntil time.Time
	Conflicts []model.BookingSummary
	Blocked   []time.Time
}

// LockStatus is the read-only "someone else is paying" view.
type LockStatus struct {
	Locked    bool
	HeldUntil time.Time
}

// LockService grants, refreshes and releases reservation locks.
type LockService struct {
	locks    LockStore
	rooms    RoomStore
	avail    *AvailabilityService
	settings *SettingsService
	clock    clock.Clock
	policy   config.Policy
	log      *logrus.Logger
}

func NewLockService(locks LockStore, rooms RoomStore, avail *AvailabilityService, settings *SettingsService,
	clk clock.Clock, policy config.Policy, log *logrus.Logger) *LockService {
	return &LockService{locks: locks, rooms: rooms, avail: avail, settings: settings, clock: clk, policy: policy, log: log}
}

func (s *LockService) validate(holderID string, rng model.DateRange) error {
	if strings.TrimSpace(holderID) == "" {
		return invalid("holder is required")
	}
	if !rng.CheckIn.Before(rng.CheckOut) {
		return invalid(model.ErrInvalidRange.Error())
	}
	if s.policy.MaxStayNights > 0 && rng.NightCount() > s.policy.MaxStayNights {
		return invalid(fmt.Sprintf("stays are limited to %d nights", s.policy.MaxStayNights))
	}
	return nil
}

func mapRoomErr(err error) error {
	if errors.Is(err, repository.ErrRoomNotFound) {
		return outcome(KindNotFound, "room not found")
	}
	return err
}

// Acquire tries to take or refresh the holder's lock.  Booked or blocked
// dates and foreign locks are reported in the result; only store failures
// return an error, and callers must then deny checkout.  Another guest's
// unpaid checkout counts as a lock conflict while that guest's lock lives
// and is released once it has expired.
func (s *LockService) Acquire(ctx context.Context, req LockRequest) (LockResult, error) {
	if err := s.validate(req.HolderID, req.Range); err != nil {
		return LockResult{}, err
	}
	room, err := s.rooms.GetByID(ctx, req.RoomID)
	if err != nil {
		return LockResult{}, mapRoomErr(err)
	}
	if !room.IsActive {
		return LockResult{}, outcome(KindNotFound, "room is not accepting bookings")
	}

	ttl := req.TTL
	if ttl <= 0 {
		st, err := s.settings.Get(ctx, room.TenantID)
		if err != nil {
			return LockResult{}, fmt.Errorf("load tenant settings: %w", err)
		}
		ttl = s.settings.LockTTL(st)
	} else {
		ttl = clock.BoundTTL(ttl, s.policy.DefaultLockTTL, s.policy.MinLockTTL, s.policy.MaxLockTTL)
	}

	av, err := s.avail.Check(ctx, req.RoomID, req.Range, CheckOptions{ExcludeHolder: req.HolderID})
	if err != nil {
		return LockResult{}, fmt.Errorf("check availability: %w", err)
	}
	if len(av.Blocked) > 0 || len(av.Conflicts) > 0 {
		return LockResult{Reason: KindDatesUnavailable, Conflicts: av.Conflicts, Blocked: av.Blocked}, nil
	}
	if len(av.Held) > 0 {
		return LockResult{Reason: KindLockConflict, HeldUntil: av.HeldUntil}, nil
	}
	if len(av.lapsed) > 0 {
		n, err := s.avail.reclaim(ctx, av.lapsed)
		if err != nil {
			return LockResult{}, fmt.Errorf("release lapsed checkouts: %w", err)
		}
		if n > 0 {
			s.log.WithFields(logrus.Fields{"room_id": req.RoomID, "released": n}).Info("lapsed checkouts released")
		}
	}

	now := s.clock.Now()
	out, err := s.locks.Acquire(ctx, model.ReservationLock{
		RoomID:    req.RoomID,
		HolderID:  req.HolderID,
		CheckIn:   req.Range.CheckIn,
		CheckOut:  req.Range.CheckOut,
		ExpiresAt: clock.ExpiresAt(now, ttl),
	}, now)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return LockResult{}, mapRoomErr(err)
		}
		return LockResult{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !out.Granted {
		return LockResult{Reason: KindLockConflict, HeldUntil: out.HeldUntil}, nil
	}
	s.log.WithFields(logrus.Fields{
		"room_id": req.RoomID, "holder_id": req.HolderID, "range": req.Range.String(),
		"expires_at": out.ExpiresAt, "refreshed": out.Refreshed,
	}).Debug("reservation lock granted")
	return LockResult{Granted: true, Refreshed: out.Refreshed, ExpiresAt: out.ExpiresAt}, nil
}

// Release drops the holder's lock.  Releasing nothing is fine.
func (s *LockService) Release(ctx context.Context, roomID uint64, holderID string, rng model.DateRange) error {
	if strings.TrimSpace(holderID) == "" {
		return invalid("holder is required")
	}
	if _, err := s.locks.Release(ctx, roomID, holderID, rng); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// IsLocked reports whether another holder currently holds an overlapping
// lock.  The answer is stale the moment it is returned.
func (s *LockService) IsLocked(ctx context.Context, roomID uint64, rng model.DateRange, excludeHolder string) (LockStatus, error) {
	heldUntil, err := s.locks.ActiveConflict(ctx, roomID, rng, excludeHolder, s.clock.Now())
	if err != nil {
		return LockStatus{}, fmt.Errorf("lock status: %w", err)
	}
	if heldUntil == nil {
		return LockStatus{}, nil
	}
	return LockStatus{Locked: true, HeldUntil: *heldUntil}, nil
}

// Err turns a denied LockResult into the matching OutcomeError; nil when granted.
func (r LockResult) Err() error {
	if r.Granted {
		return nil
	}
	if r.Reason == KindLockConflict {
		return &OutcomeError{Kind: KindLockConflict, Message: "another guest is completing payment for these dates", HeldUntil: r.HeldUntil}
	}
	return &OutcomeError{Kind: KindDatesUnavailable, Message: "these dates are no longer available", Conflicts: r.Conflicts, Blocked: r.Blocked}
}
