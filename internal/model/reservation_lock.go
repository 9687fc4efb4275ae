package model

import "time"

// ReservationLock is a short-lived exclusive claim on a room for a date range
// held by one checkout session.  Validity is decided at read time by
// comparing ExpiresAt with the current clock; expired rows linger until the
// sweeper removes them and are ignored by every query in the meantime.
//
// Fields:
//  ID        – primary key identifier.
//  RoomID    – room being claimed.
//  HolderID  – checkout session or user that owns the claim.
//  CheckIn   – first night claimed.
//  CheckOut  – departure day (exclusive).
//  ExpiresAt – moment the claim lapses.
//  CreatedAt – creation timestamp.
type ReservationLock struct {
	ID        uint64    // reservation_locks.id
	RoomID    uint64    // reservation_locks.room_id
	HolderID  string    // reservation_locks.holder_id
	CheckIn   time.Time // reservation_locks.check_in
	CheckOut  time.Time // reservation_locks.check_out
	ExpiresAt time.Time // reservation_locks.expires_at
	CreatedAt time.Time // reservation_locks.created_at
}

// Range returns the lock's stay interval.
func (l ReservationLock) Range() DateRange {
	return DateRange{CheckIn: Day(l.CheckIn), CheckOut: Day(l.CheckOut)}
}
