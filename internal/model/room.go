package model

import "time"

// Room is a bookable unit owned by a tenant (a homestay property).
type Room struct {
	ID             uint64 // rooms.id
	TenantID       uint64 // rooms.tenant_id
	Name           string // rooms.name
	BasePriceCents int64  // rooms.base_price_cents
	IsActive       bool   // rooms.is_active
}

// BlockedDate is a host blackout night on a room's calendar.
type BlockedDate struct {
	RoomID uint64    // room_blocked_dates.room_id
	Date   time.Time // room_blocked_dates.blocked_date
	Reason string    // room_blocked_dates.reason
}

// TenantSettings carries per-tenant booking policy.
type TenantSettings struct {
	TenantID               uint64 `json:"tenant_id"`
	LockTTLMinutes         int    `json:"lock_ttl_minutes"`
	OnlinePaymentEnabled   bool   `json:"online_payment_enabled"`
	CancellationGraceHours int    `json:"cancellation_grace_hours"`
	NotifyEmail            string `json:"notify_email"`
}

// InitialStatus is the status new bookings start in for this tenant.
func (s TenantSettings) InitialStatus() BookingStatus {
	if s.OnlinePaymentEnabled {
		return StatusAwaitingPayment
	}
	return StatusPending
}
