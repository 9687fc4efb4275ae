package model

import "time"

// UploadToken binds a pending checkout to a single-use URL so a guest can
// submit the slip from another device.  Only the SHA-256 of the raw token is
// persisted.
type UploadToken struct {
	ID              uint64     // upload_tokens.id
	TokenHash       string     // upload_tokens.token_hash
	HolderID        string     // upload_tokens.holder_id
	UserID          *string    // upload_tokens.user_id (nullable)
	TenantID        uint64     // upload_tokens.tenant_id
	RoomID          uint64     // upload_tokens.room_id
	CheckIn         time.Time  // upload_tokens.check_in
	CheckOut        time.Time  // upload_tokens.check_out
	GuestCount      int        // upload_tokens.guest_count
	TotalPriceCents int64      // upload_tokens.total_price_cents
	Notes           string     // upload_tokens.notes
	ExpiresAt       time.Time  // upload_tokens.expires_at
	IsUploaded      bool       // upload_tokens.is_uploaded
	SlipURL         *string    // upload_tokens.slip_url
	ContentHash     *string    // upload_tokens.content_hash
	BookingID       *uint64    // upload_tokens.booking_id
	CreatedAt       time.Time  // upload_tokens.created_at
}

// Range returns the bound stay interval.
func (t UploadToken) Range() DateRange {
	return DateRange{CheckIn: Day(t.CheckIn), CheckOut: Day(t.CheckOut)}
}
