// Package clock centralises "now" and TTL arithmetic so expiry decisions can
// be driven from tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time in UTC.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

// Now returns time.Now in UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Manual is a settable clock used by tests and simulations.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock positioned at t.
func NewManual(t time.Time) *Manual { return &Manual{now: t.UTC()} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// ExpiresAt is now + ttl, truncated to whole seconds to match DATETIME precision.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	return now.UTC().Add(ttl).Truncate(time.Second)
}

// Expired reports whether a record stamped with expiresAt is void at now.
// A record expiring exactly at now is already void.
func Expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// BoundTTL clamps ttl into [min, max]; a non-positive ttl yields def.
func BoundTTL(ttl, def, min, max time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = def
	}
	if ttl < min {
		return min
	}
	if ttl > max {
		return max
	}
	return ttl
}
