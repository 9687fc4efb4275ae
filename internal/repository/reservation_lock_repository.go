package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// LockOutcome is the result of an acquisition attempt.  When Granted is
// false, HeldUntil carries the latest expiry among the conflicting locks.
type LockOutcome struct {
	Granted   bool
	Refreshed bool
	ExpiresAt time.Time
	HeldUntil time.Time
}

// LockRepo provides data access to the reservation_locks table.  Every
// validity decision compares expires_at with the caller-supplied now so the
// same clock drives handlers, the sweeper and tests.  Expired rows are
// treated as absent; nothing ever flips a flag on them.
type LockRepo struct {
	db *sql.DB
}

// NewLockRepo returns a new LockRepo bound to the provided database.
func NewLockRepo(db *sql.DB) *LockRepo { return &LockRepo{db: db} }

// Acquire atomically checks for a conflicting lock and either refreshes the
// holder's own covering lock or writes a new one.  The rooms row is locked
// FOR UPDATE first so two acquisitions for the same room serialise inside
// MySQL; the loser observes the winner's row and is denied.
func (r *LockRepo) Acquire(ctx context.Context, l model.ReservationLock, now time.Time) (LockOutcome, error) {
	var out LockOutcome
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var roomID uint64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM rooms WHERE id = ? FOR UPDATE`, l.RoomID).Scan(&roomID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRoomNotFound
			}
			return err
		}

		heldUntil, err := r.conflictTx(ctx, tx, l.RoomID, l.HolderID, l.Range(), now)
		if err != nil {
			return err
		}
		if heldUntil != nil {
			out = LockOutcome{Granted: false, HeldUntil: *heldUntil}
			return nil
		}

		// Refresh a live lock of the same holder that already covers the range.
		var ownID uint64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM reservation_locks
			 WHERE room_id = ? AND holder_id = ? AND check_in <= ? AND check_out >= ? AND expires_at > ?
			 ORDER BY expires_at DESC LIMIT 1 FOR UPDATE`,
			l.RoomID, l.HolderID, l.CheckIn, l.CheckOut, now,
		).Scan(&ownID)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `UPDATE reservation_locks SET expires_at = ? WHERE id = ?`, l.ExpiresAt, ownID); err != nil {
				return err
			}
			out = LockOutcome{Granted: true, Refreshed: true, ExpiresAt: l.ExpiresAt}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		// A lingering expired row for the exact key is reused rather than duplicated.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservation_locks (room_id, holder_id, check_in, check_out, expires_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON DUPLICATE KEY UPDATE expires_at = VALUES(expires_at)`,
			l.RoomID, l.HolderID, l.CheckIn, l.CheckOut, l.ExpiresAt,
		); err != nil {
			return err
		}
		out = LockOutcome{Granted: true, ExpiresAt: l.ExpiresAt}
		return nil
	})
	return out, err
}

// conflictTx returns the latest expiry among live locks of other holders
// overlapping rng, or nil when there are none.
func (r *LockRepo) conflictTx(ctx context.Context, q dbtx, roomID uint64, holderID string, rng model.DateRange, now time.Time) (*time.Time, error) {
	var heldUntil sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT MAX(expires_at) FROM reservation_locks
		 WHERE room_id = ? AND holder_id <> ? AND check_in < ? AND check_out > ? AND expires_at > ?`,
		roomID, holderID, rng.CheckOut, rng.CheckIn, now,
	).Scan(&heldUntil)
	if err != nil {
		return nil, err
	}
	return timePtr(heldUntil), nil
}

// ActiveConflict is the read-only variant used for status display.  It must
// never be used as the basis of a write.
func (r *LockRepo) ActiveConflict(ctx context.Context, roomID uint64, rng model.DateRange, excludeHolder string, now time.Time) (*time.Time, error) {
	return r.conflictTx(ctx, r.db, roomID, excludeHolder, rng, now)
}

// HolderLock returns the latest expiry among holderID's live locks
// overlapping rng, or nil when the holder has none.
func (r *LockRepo) HolderLock(ctx context.Context, roomID uint64, holderID string, rng model.DateRange, now time.Time) (*time.Time, error) {
	var until sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(expires_at) FROM reservation_locks
		 WHERE room_id = ? AND holder_id = ? AND check_in < ? AND check_out > ? AND expires_at > ?`,
		roomID, holderID, rng.CheckOut, rng.CheckIn, now,
	).Scan(&until)
	if err != nil {
		return nil, err
	}
	return timePtr(until), nil
}

// Release deletes the holder's locks on the room that overlap rng.  Deleting
// nothing is not an error.
func (r *LockRepo) Release(ctx context.Context, roomID uint64, holderID string, rng model.DateRange) (int64, error) {
	return r.ReleaseTx(ctx, r.db, roomID, holderID, rng)
}

// ReleaseTx is Release on a caller-owned transaction (or the pool).
func (r *LockRepo) ReleaseTx(ctx context.Context, q dbtx, roomID uint64, holderID string, rng model.DateRange) (int64, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM reservation_locks WHERE room_id = ? AND holder_id = ? AND check_in < ? AND check_out > ?`,
		roomID, holderID, rng.CheckOut, rng.CheckIn,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes every lock whose expiry is at or before now.
func (r *LockRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reservation_locks WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
