package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// UploadTokenRepo persists cross-device upload tokens (single 'token_hash' column).
type UploadTokenRepo struct{ db *sql.DB }

func NewUploadTokenRepo(db *sql.DB) *UploadTokenRepo { return &UploadTokenRepo{db: db} }

// Create inserts a token row; t.TokenHash must already be hashed.
func (r *UploadTokenRepo) Create(ctx context.Context, t *model.UploadToken) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO upload_tokens (token_hash, holder_id, user_id, tenant_id, room_id, check_in, check_out,
		  guest_count, total_price_cents, notes, expires_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.TokenHash, t.HolderID, nullString(t.UserID), t.TenantID, t.RoomID, t.CheckIn, t.CheckOut,
		t.GuestCount, t.TotalPriceCents, t.Notes, t.ExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByHash returns the token row regardless of expiry; callers decide.
func (r *UploadTokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.UploadToken, error) {
	var (
		t           model.UploadToken
		userID      sql.NullString
		notes       sql.NullString
		slipURL     sql.NullString
		contentHash sql.NullString
		bookingID   sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token_hash, holder_id, user_id, tenant_id, room_id, check_in, check_out, guest_count,
		        total_price_cents, notes, expires_at, is_uploaded, slip_url, content_hash, booking_id, created_at
		 FROM upload_tokens WHERE token_hash = ? LIMIT 1`, tokenHash,
	).Scan(&t.ID, &t.TokenHash, &t.HolderID, &userID, &t.TenantID, &t.RoomID, &t.CheckIn, &t.CheckOut, &t.GuestCount,
		&t.TotalPriceCents, &notes, &t.ExpiresAt, &t.IsUploaded, &slipURL, &contentHash, &bookingID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UploadToken{}, ErrUploadTokenNotFound
	}
	if err != nil {
		return model.UploadToken{}, err
	}
	t.UserID = stringPtr(userID)
	t.Notes = notes.String
	t.SlipURL = stringPtr(slipURL)
	t.ContentHash = stringPtr(contentHash)
	if bookingID.Valid {
		id := uint64(bookingID.Int64)
		t.BookingID = &id
	}
	return t, nil
}

// MarkUploaded flips is_uploaded exactly once.  It returns false when the
// token was already used or has expired.
func (r *UploadTokenRepo) MarkUploaded(ctx context.Context, id uint64, slipURL, contentHash string, bookingID uint64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE upload_tokens SET is_uploaded = 1, slip_url = ?, content_hash = ?, booking_id = ?
		 WHERE id = ? AND is_uploaded = 0 AND expires_at > ?`,
		nullString(&slipURL), contentHash, bookingID, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteExpired removes unused tokens past expiry.  Uploaded tokens are kept
// as an audit trail of which device delivered which slip.
func (r *UploadTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_tokens WHERE is_uploaded = 0 AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
