package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/repository"
)

// CheckoutInput starts a checkout for a holder.
type CheckoutInput struct {
	RoomID     uint64
	HolderID   string
	UserID     *string
	Range      model.DateRange
	GuestCount int
	Notes      string
}

// CheckoutResult is a started checkout: the held lock and its booking.
type CheckoutResult struct {
	Booking   model.Booking
	ExpiresAt time.Time
}

// BookingService covers the booking lifecycle around confirmation.
type BookingService struct {
	bookings BookingStore
	rooms    RoomStore
	locks    *LockService
	settings *SettingsService
	clock    clock.Clock
	log      *logrus.Logger
}

func NewBookingService(bookings BookingStore, rooms RoomStore, locks *LockService, settings *SettingsService,
	clk clock.Clock, log *logrus.Logger) *BookingService {
	return &BookingService{bookings: bookings, rooms: rooms, locks: locks, settings: settings, clock: clk, log: log}
}

// StartCheckout takes the lock and creates the holder's unverified booking,
// priced at the room's base nightly rate.  Re-entering an existing checkout
// for the same stay returns the existing booking.
func (s *BookingService) StartCheckout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	lock, err := s.locks.Acquire(ctx, LockRequest{RoomID: in.RoomID, HolderID: in.HolderID, Range: in.Range})
	if err != nil {
		return CheckoutResult{}, err
	}
	if !lock.Granted {
		return CheckoutResult{}, lock.Err()
	}

	existing, err := s.bookings.FindUnverified(ctx, in.RoomID, in.HolderID, in.Range)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("find unverified booking: %w", err)
	}
	if existing != nil {
		return CheckoutResult{Booking: *existing, ExpiresAt: lock.ExpiresAt}, nil
	}

	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return CheckoutResult{}, mapRoomErr(err)
	}
	st, err := s.settings.Get(ctx, room.TenantID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("load tenant settings: %w", err)
	}
	guests := in.GuestCount
	if guests <= 0 {
		guests = 1
	}
	b := model.Booking{
		TenantID:        room.TenantID,
		RoomID:          in.RoomID,
		HolderID:        in.HolderID,
		UserID:          in.UserID,
		CheckIn:         in.Range.CheckIn,
		CheckOut:        in.Range.CheckOut,
		GuestCount:      guests,
		TotalPriceCents: room.BasePriceCents * int64(in.Range.NightCount()),
		Notes:           in.Notes,
		Status:          st.InitialStatus(),
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return CheckoutResult{}, outcome(KindDatesUnavailable, "these dates were just booked by someone else")
		}
		return CheckoutResult{}, fmt.Errorf("create booking: %w", err)
	}
	return CheckoutResult{Booking: b, ExpiresAt: lock.ExpiresAt}, nil
}

// Get returns a booking owned by holderID.
func (s *BookingService) Get(ctx context.Context, id uint64, holderID string) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return model.Booking{}, outcome(KindNotFound, "booking not found")
	}
	if err != nil {
		return model.Booking{}, err
	}
	if b.HolderID != holderID {
		return model.Booking{}, outcome(KindNotFound, "booking not found")
	}
	return b, nil
}

// ListMine returns the holder's bookings.
func (s *BookingService) ListMine(ctx context.Context, holderID string) ([]model.Booking, error) {
	return s.bookings.ListByHolder(ctx, holderID)
}

// CancelByGuest cancels the holder's booking.  Unverified bookings may be
// cancelled at any time; confirmed ones only inside the tenant's grace
// window after verification and never on or after check-in.
func (s *BookingService) CancelByGuest(ctx context.Context, id uint64, holderID string) (model.Booking, error) {
	b, err := s.Get(ctx, id, holderID)
	if err != nil {
		return model.Booking{}, err
	}
	now := s.clock.Now()
	allowed := model.UnverifiedStatuses
	if b.Status == model.StatusConfirmed {
		st, err := s.settings.Get(ctx, b.TenantID)
		if err != nil {
			return model.Booking{}, fmt.Errorf("load tenant settings: %w", err)
		}
		grace := time.Duration(st.CancellationGraceHours) * time.Hour
		if b.PaymentVerifiedAt == nil || now.After(b.PaymentVerifiedAt.Add(grace)) || !now.Before(b.CheckIn) {
			return model.Booking{}, outcome(KindInvalidState, "the free cancellation window for this booking has passed")
		}
		allowed = []model.BookingStatus{model.StatusConfirmed}
	}
	out, err := s.cancel(ctx, id, allowed, now)
	if err != nil {
		return model.Booking{}, err
	}
	if err := s.locks.Release(ctx, out.RoomID, out.HolderID, out.Range()); err != nil {
		s.log.WithError(err).WithField("booking_id", id).Warn("release lock after cancel failed")
	}
	return out, nil
}

// CancelByHost cancels any occupying booking of the host's tenant.
func (s *BookingService) CancelByHost(ctx context.Context, id, tenantID uint64) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return model.Booking{}, outcome(KindNotFound, "booking not found")
	}
	if err != nil {
		return model.Booking{}, err
	}
	if b.TenantID != tenantID {
		return model.Booking{}, outcome(KindForbidden, "booking belongs to another property")
	}
	return s.cancel(ctx, id, model.OccupyingStatuses, s.clock.Now())
}

func (s *BookingService) cancel(ctx context.Context, id uint64, allowed []model.BookingStatus, now time.Time) (model.Booking, error) {
	out, err := s.bookings.Cancel(ctx, id, allowed, now)
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		return model.Booking{}, outcome(KindNotFound, "booking not found")
	case errors.Is(err, repository.ErrConflict):
		return model.Booking{}, outcome(KindInvalidState, "this booking can no longer be cancelled")
	case err != nil:
		return model.Booking{}, fmt.Errorf("cancel booking: %w", err)
	}
	s.log.WithFields(logrus.Fields{"booking_id": id, "room_id": out.RoomID}).Info("booking cancelled")
	return out, nil
}

// CompletePastStays marks confirmed stays completed once their checkout
// day has passed.
func (s *BookingService) CompletePastStays(ctx context.Context) (int64, error) {
	return s.bookings.CompletePast(ctx, model.Day(s.clock.Now()))
}

func (s *BookingService) hostRoom(ctx context.Context, roomID, tenantID uint64) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return mapRoomErr(err)
	}
	if room.TenantID != tenantID {
		return outcome(KindForbidden, "room belongs to another property")
	}
	return nil
}

// BlockDates adds blackout nights to one of the host's rooms.
func (s *BookingService) BlockDates(ctx context.Context, roomID, tenantID uint64, rng model.DateRange, reason string) error {
	if err := s.hostRoom(ctx, roomID, tenantID); err != nil {
		return err
	}
	if rng.NightCount() > MaxCalendarWindow {
		return invalid("blackouts are limited to one year at a time")
	}
	return s.rooms.Block(ctx, roomID, rng.Nights(), reason)
}

// UnblockDates removes blackout nights inside rng.
func (s *BookingService) UnblockDates(ctx context.Context, roomID, tenantID uint64, rng model.DateRange) (int64, error) {
	if err := s.hostRoom(ctx, roomID, tenantID); err != nil {
		return 0, err
	}
	return s.rooms.Unblock(ctx, roomID, rng)
}
