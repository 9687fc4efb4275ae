package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// BookingRepo provides access to bookings and their per-night occupancy rows.
// Every write that moves a booking into or out of an occupying status keeps
// booking_nights in step within the same transaction.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, tenant_id, room_id, holder_id, user_id, check_in, check_out, guest_count,
	total_price_cents, notes, status, is_draft, payment_evidence_url, payment_verified_at,
	payment_reference, verification_payload, cancelled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (model.Booking, error) {
	var (
		b           model.Booking
		userID      sql.NullString
		notes       sql.NullString
		status      string
		evidenceURL sql.NullString
		verifiedAt  sql.NullTime
		reference   sql.NullString
		payload     []byte
		cancelledAt sql.NullTime
	)
	err := s.Scan(&b.ID, &b.TenantID, &b.RoomID, &b.HolderID, &userID, &b.CheckIn, &b.CheckOut,
		&b.GuestCount, &b.TotalPriceCents, &notes, &status, &b.IsDraft, &evidenceURL, &verifiedAt,
		&reference, &payload, &cancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.UserID = stringPtr(userID)
	b.Notes = notes.String
	b.Status = model.BookingStatus(status)
	b.PaymentEvidenceURL = stringPtr(evidenceURL)
	b.PaymentVerifiedAt = timePtr(verifiedAt)
	b.PaymentReference = stringPtr(reference)
	b.VerificationPayload = payload
	b.CancelledAt = timePtr(cancelledAt)
	return b, nil
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Create inserts b together with one booking_nights row per night.  A
// duplicate night surfaces as ErrOverlap and nothing is written.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO bookings (tenant_id, room_id, holder_id, user_id, check_in, check_out, guest_count,
			  total_price_cents, notes, status, is_draft)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.TenantID, b.RoomID, b.HolderID, nullString(b.UserID), b.CheckIn, b.CheckOut, b.GuestCount,
			b.TotalPriceCents, b.Notes, string(b.Status), b.IsDraft,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := r.insertNightsTx(ctx, tx, uint64(id), b.RoomID, b.Range()); err != nil {
			return err
		}
		b.ID = uint64(id)
		return nil
	})
}

func (r *BookingRepo) insertNightsTx(ctx context.Context, tx *sql.Tx, bookingID, roomID uint64, rng model.DateRange) error {
	nights := rng.Nights()
	if len(nights) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_nights (room_id, night, booking_id) VALUES `)
	args := make([]any, 0, len(nights)*3)
	for i, n := range nights {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, roomID, n.Format(model.DateLayout), bookingID)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		if isDuplicateKey(err) {
			return ErrOverlap
		}
		return err
	}
	return nil
}

// GetByID returns the booking with the given id.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// ListByHolder returns the holder's bookings, newest first.
func (r *BookingRepo) ListByHolder(ctx context.Context, holderID string) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE holder_id = ? ORDER BY created_at DESC, id DESC`, holderID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListOverlapping returns occupying bookings of the room whose stay overlaps
// rng, using existing.check_in < rng.check_out AND existing.check_out > rng.check_in.
func (r *BookingRepo) ListOverlapping(ctx context.Context, roomID uint64, rng model.DateRange) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE room_id = ? AND status IN ('pending','awaiting_payment','confirmed')
		   AND check_in < ? AND check_out > ?
		 ORDER BY check_in`,
		roomID, rng.CheckOut, rng.CheckIn)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// FindUnverified returns the holder's pending or awaiting_payment booking for
// exactly this room and range, or nil when there is none.
func (r *BookingRepo) FindUnverified(ctx context.Context, roomID uint64, holderID string, rng model.DateRange) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE room_id = ? AND holder_id = ? AND check_in = ? AND check_out = ?
		   AND status IN ('pending','awaiting_payment')
		 ORDER BY id DESC LIMIT 1`,
		roomID, holderID, rng.CheckIn, rng.CheckOut))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteDraft removes a draft that never received verified evidence.  Rows
// that are not drafts, or have moved past the unverified states, are left
// untouched and false is returned.  Nights cascade with the booking.
func (r *BookingRepo) DeleteDraft(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bookings
		 WHERE id = ? AND is_draft = 1 AND status IN ('pending','awaiting_payment') AND payment_verified_at IS NULL`,
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Cancel moves a booking to cancelled and frees its nights.  The current
// status must be one of allowed, otherwise ErrConflict is returned.
func (r *BookingRepo) Cancel(ctx context.Context, id uint64, allowed []model.BookingStatus, now time.Time) (model.Booking, error) {
	var out model.Booking
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		ok := false
		for _, s := range allowed {
			if b.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return ErrConflict
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = 'cancelled', is_draft = 0, cancelled_at = ? WHERE id = ?`, now, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_nights WHERE booking_id = ?`, id); err != nil {
			return err
		}
		b.Status = model.StatusCancelled
		b.CancelledAt = &now
		out = b
		return nil
	})
	return out, err
}

// DeleteStaleUnverified removes pending/awaiting_payment bookings created
// before cutoff that never received verified evidence.  Confirmed,
// cancelled and completed rows are never matched.
func (r *BookingRepo) DeleteStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bookings
		 WHERE status IN ('pending','awaiting_payment') AND payment_verified_at IS NULL AND created_at < ?`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CompletePast marks confirmed stays whose checkout day is before today as
// completed and releases their nights. A stay checking out today is still
// in progress.
func (r *BookingRepo) CompletePast(ctx context.Context, today time.Time) (int64, error) {
	var n int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE n FROM booking_nights n JOIN bookings b ON b.id = n.booking_id
			 WHERE b.status = 'confirmed' AND b.check_out < ?`, today); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = 'completed' WHERE status = 'confirmed' AND check_out < ?`, today)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
