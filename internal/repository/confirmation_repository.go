package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// ConfirmInput carries everything the confirming transaction writes.
type ConfirmInput struct {
	BookingID   uint64
	Evidence    model.PaymentEvidence
	EvidenceURL string
}

// ConfirmationRepo owns the single transaction that turns a verified payment
// into a confirmed booking.  The booking update, the evidence ledger insert
// and the lock release either all happen or none do.
type ConfirmationRepo struct {
	db       *sql.DB
	evidence *EvidenceRepo
	locks    *LockRepo
}

// NewConfirmationRepo wires the repositories that take part in confirmation.
func NewConfirmationRepo(db *sql.DB, evidence *EvidenceRepo, locks *LockRepo) *ConfirmationRepo {
	return &ConfirmationRepo{db: db, evidence: evidence, locks: locks}
}

// Confirm commits a verified payment.  It returns ErrBookingNotFound when the
// booking vanished (for example a sweeper removed an abandoned draft),
// ErrConflict when the booking is no longer unverified and
// ErrDuplicateEvidence when the ledger already holds the hash or reference.
func (r *ConfirmationRepo) Confirm(ctx context.Context, in ConfirmInput) (model.Booking, error) {
	var out model.Booking
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, in.BookingID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if !b.Status.Unverified() || b.PaymentVerifiedAt != nil {
			return ErrConflict
		}

		ev := in.Evidence
		ev.BookingID = b.ID
		ev.TenantID = b.TenantID
		if err := r.evidence.InsertTx(ctx, tx, &ev); err != nil {
			return err
		}

		var url *string
		if in.EvidenceURL != "" {
			url = &in.EvidenceURL
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bookings
			 SET status = 'confirmed', is_draft = 0, payment_verified_at = ?, payment_reference = ?,
			     verification_payload = ?, payment_evidence_url = ?
			 WHERE id = ?`,
			ev.VerifiedAt, nullString(ev.ExternalReference), nullJSON(ev.VerifierPayload), nullString(url), b.ID,
		); err != nil {
			return err
		}

		if _, err := r.locks.ReleaseTx(ctx, tx, b.RoomID, b.HolderID, b.Range()); err != nil {
			return err
		}

		b.Status = model.StatusConfirmed
		b.IsDraft = false
		verifiedAt := ev.VerifiedAt
		b.PaymentVerifiedAt = &verifiedAt
		b.PaymentReference = ev.ExternalReference
		b.VerificationPayload = ev.VerifierPayload
		b.PaymentEvidenceURL = url
		out = b
		return nil
	})
	return out, err
}
