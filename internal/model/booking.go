package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	StatusPending         BookingStatus = "pending"
	StatusAwaitingPayment BookingStatus = "awaiting_payment"
	StatusConfirmed       BookingStatus = "confirmed"
	StatusCancelled       BookingStatus = "cancelled"
	StatusCompleted       BookingStatus = "completed"
)

// OccupyingStatuses hold calendar space and take part in overlap checks.
var OccupyingStatuses = []BookingStatus{StatusPending, StatusAwaitingPayment, StatusConfirmed}

// UnverifiedStatuses are the pre-payment states.
var UnverifiedStatuses = []BookingStatus{StatusPending, StatusAwaitingPayment}

// Occupies reports whether bookings in status s block the room's calendar.
func (s BookingStatus) Occupies() bool {
	return s == StatusPending || s == StatusAwaitingPayment || s == StatusConfirmed
}

// Unverified reports whether s is a pre-payment state.
func (s BookingStatus) Unverified() bool {
	return s == StatusPending || s == StatusAwaitingPayment
}

// Booking is a guest's claim on a room for a stay.  A booking becomes
// confirmed only through successful payment-evidence verification, which
// stamps the Payment* fields in the same transaction.
//
// IsDraft marks a row created by the evidence submission flow solely to
// carry the attempt; only drafts are deleted when the attempt fails.
type Booking struct {
	ID                  uint64        // bookings.id
	TenantID            uint64        // bookings.tenant_id
	RoomID              uint64        // bookings.room_id
	HolderID            string        // bookings.holder_id
	UserID              *string       // bookings.user_id (nullable)
	CheckIn             time.Time     // bookings.check_in
	CheckOut            time.Time     // bookings.check_out
	GuestCount          int           // bookings.guest_count
	TotalPriceCents     int64         // bookings.total_price_cents
	Notes               string        // bookings.notes
	Status              BookingStatus // bookings.status
	IsDraft             bool          // bookings.is_draft
	PaymentEvidenceURL  *string       // bookings.payment_evidence_url
	PaymentVerifiedAt   *time.Time    // bookings.payment_verified_at
	PaymentReference    *string       // bookings.payment_reference
	VerificationPayload []byte        // bookings.verification_payload (JSON)
	CancelledAt         *time.Time    // bookings.cancelled_at
	CreatedAt           time.Time     // bookings.created_at
	UpdatedAt           time.Time     // bookings.updated_at
}

// Range returns the booking's stay interval.
func (b Booking) Range() DateRange {
	return DateRange{CheckIn: Day(b.CheckIn), CheckOut: Day(b.CheckOut)}
}

// BookingSummary is the slice of a booking exposed in availability results.
type BookingSummary struct {
	ID       uint64        `json:"id"`
	CheckIn  string        `json:"check_in"`
	CheckOut string        `json:"check_out"`
	Status   BookingStatus `json:"status"`
}

// Summary projects b into a BookingSummary.
func (b Booking) Summary() BookingSummary {
	return BookingSummary{
		ID:       b.ID,
		CheckIn:  Day(b.CheckIn).Format(DateLayout),
		CheckOut: Day(b.CheckOut).Format(DateLayout),
		Status:   b.Status,
	}
}
