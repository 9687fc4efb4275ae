package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/repository"
)

// AvailabilityResult explains why a range is or is not free.
//
// Conflicts are bookings that hold the dates outright.  Held are another
// guest's unpaid checkouts whose lock is still live; they free up at
// HeldUntil if that guest does not pay.  Unpaid checkouts whose lock has
// expired are not reported at all.
type AvailabilityResult struct {
	Available bool
	Blocked   []time.Time
	Conflicts []model.BookingSummary
	Held      []model.BookingSummary
	HeldUntil time.Time

	lapsed []model.Booking
}

// CheckOptions tunes an availability check.
type CheckOptions struct {
	// ExcludeHolder ignores this holder's own unverified booking for the
	// exact same range, so a guest retrying payment is not blocked by the
	// booking their earlier attempt created.
	ExcludeHolder string
}

// AvailabilityService answers whether a room is free for a range.  Its
// answer is advisory: the booking_nights constraint decides at write time.
type AvailabilityService struct {
	bookings BookingStore
	rooms    RoomStore
	locks    LockStore
	clock    clock.Clock
}

func NewAvailabilityService(bookings BookingStore, rooms RoomStore, locks LockStore, clk clock.Clock) *AvailabilityService {
	return &AvailabilityService{bookings: bookings, rooms: rooms, locks: locks, clock: clk}
}

// Check reports blackout nights, overlapping occupying bookings and other
// guests' checkouts still inside their lock.
func (s *AvailabilityService) Check(ctx context.Context, roomID uint64, rng model.DateRange, opts CheckOptions) (AvailabilityResult, error) {
	blocked, err := s.rooms.BlockedDates(ctx, roomID, rng)
	if err != nil {
		return AvailabilityResult{}, err
	}
	overlapping, err := s.bookings.ListOverlapping(ctx, roomID, rng)
	if err != nil {
		return AvailabilityResult{}, err
	}
	now := s.clock.Now()
	res := AvailabilityResult{Blocked: blocked}
	for _, b := range overlapping {
		own := opts.ExcludeHolder != "" && b.HolderID == opts.ExcludeHolder
		if own && b.Status.Unverified() && b.Range().Equal(rng) {
			continue
		}
		if own || !b.Status.Unverified() {
			res.Conflicts = append(res.Conflicts, b.Summary())
			continue
		}
		until, err := s.locks.HolderLock(ctx, roomID, b.HolderID, b.Range(), now)
		if err != nil {
			return AvailabilityResult{}, err
		}
		if until == nil {
			res.lapsed = append(res.lapsed, b)
			continue
		}
		res.Held = append(res.Held, b.Summary())
		if until.After(res.HeldUntil) {
			res.HeldUntil = *until
		}
	}
	res.Available = len(res.Blocked) == 0 && len(res.Conflicts) == 0 && len(res.Held) == 0
	return res, nil
}

// reclaim releases unpaid checkouts whose holder's lock has expired so
// their nights can be taken.  A holder who re-locked in the meantime keeps
// the booking.  Returns how many bookings were released.
func (s *AvailabilityService) reclaim(ctx context.Context, lapsed []model.Booking) (int, error) {
	n := 0
	for _, b := range lapsed {
		now := s.clock.Now()
		until, err := s.locks.HolderLock(ctx, b.RoomID, b.HolderID, b.Range(), now)
		if err != nil {
			return n, err
		}
		if until != nil {
			continue
		}
		if b.IsDraft {
			ok, err := s.bookings.DeleteDraft(ctx, b.ID)
			if err != nil {
				return n, fmt.Errorf("discard lapsed draft %d: %w", b.ID, err)
			}
			if ok {
				n++
			}
			continue
		}
		_, err = s.bookings.Cancel(ctx, b.ID, model.UnverifiedStatuses, now)
		switch {
		case err == nil:
			n++
		case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrBookingNotFound):
			// paid or removed meanwhile
		default:
			return n, fmt.Errorf("release lapsed checkout %d: %w", b.ID, err)
		}
	}
	return n, nil
}

// Calendar is the public occupancy view of a room over a window.
type Calendar struct {
	RoomID   uint64                 `json:"room_id"`
	From     string                 `json:"from"`
	To       string                 `json:"to"`
	Occupied []model.BookingSummary `json:"occupied"`
	Blocked  []string               `json:"blocked"`
}

// MaxCalendarWindow bounds Calendar requests.
const MaxCalendarWindow = 366

// Calendar lists occupied stays and blackout nights inside window.
func (s *AvailabilityService) Calendar(ctx context.Context, roomID uint64, window model.DateRange) (Calendar, error) {
	if window.NightCount() > MaxCalendarWindow {
		return Calendar{}, invalid("calendar window is limited to one year")
	}
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return Calendar{}, mapRoomErr(err)
	}
	blocked, err := s.rooms.BlockedDates(ctx, roomID, window)
	if err != nil {
		return Calendar{}, err
	}
	occupied, err := s.bookings.ListOverlapping(ctx, roomID, window)
	if err != nil {
		return Calendar{}, err
	}
	cal := Calendar{
		RoomID:   roomID,
		From:     window.CheckIn.Format(model.DateLayout),
		To:       window.CheckOut.Format(model.DateLayout),
		Occupied: make([]model.BookingSummary, 0, len(occupied)),
		Blocked:  make([]string, 0, len(blocked)),
	}
	now := s.clock.Now()
	for _, b := range occupied {
		if b.Status.Unverified() {
			until, err := s.locks.HolderLock(ctx, roomID, b.HolderID, b.Range(), now)
			if err != nil {
				return Calendar{}, err
			}
			if until == nil {
				continue
			}
		}
		sum := b.Summary()
		sum.ID = 0 // public view: dates and status only
		cal.Occupied = append(cal.Occupied, sum)
	}
	for _, d := range blocked {
		cal.Blocked = append(cal.Blocked, d.Format(model.DateLayout))
	}
	return cal, nil
}
