package model

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire and DATE column format for stay dates.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned when check_in is not strictly before check_out.
var ErrInvalidRange = errors.New("check_in must be before check_out")

// DateRange is a half-open stay interval [CheckIn, CheckOut).  Both ends are
// calendar dates at UTC midnight; the guest sleeps the nights from CheckIn
// up to but excluding CheckOut.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewDateRange normalises both ends to UTC midnight and validates ordering.
func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	r := DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
	if !r.CheckIn.Before(r.CheckOut) {
		return DateRange{}, ErrInvalidRange
	}
	return r, nil
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid check_in %q: %w", checkIn, err)
	}
	out, err := time.Parse(DateLayout, checkOut)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid check_out %q: %w", checkOut, err)
	}
	return NewDateRange(in, out)
}

// Day truncates t to midnight UTC of the same calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Overlaps uses the half-open predicate a.in < b.out && a.out > b.in, so
// back-to-back stays (one checks out the day the other checks in) do not
// collide.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && r.CheckOut.After(o.CheckIn)
}

// Covers reports whether r fully contains o.
func (r DateRange) Covers(o DateRange) bool {
	return !r.CheckIn.After(o.CheckIn) && !r.CheckOut.Before(o.CheckOut)
}

// Equal compares both ends at day precision.
func (r DateRange) Equal(o DateRange) bool {
	return r.CheckIn.Equal(o.CheckIn) && r.CheckOut.Equal(o.CheckOut)
}

// NightCount is the number of nights in the stay.
func (r DateRange) NightCount() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Nights lists every occupied night, CheckIn inclusive, CheckOut exclusive.
func (r DateRange) Nights() []time.Time {
	n := r.NightCount()
	out := make([]time.Time, 0, n)
	for d := r.CheckIn; d.Before(r.CheckOut); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (r DateRange) String() string {
	return r.CheckIn.Format(DateLayout) + ".." + r.CheckOut.Format(DateLayout)
}
