// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer pair that moves them.
package queue

// BookingConfirmedQueue is the durable queue carrying confirmations.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published after a booking's confirming
// transaction commits.  It carries enough detail for notification without
// querying the primary database.
type BookingConfirmedEvent struct {
	BookingID        uint64  `json:"booking_id"`
	TenantID         uint64  `json:"tenant_id"`
	RoomID           uint64  `json:"room_id"`
	RoomName         string  `json:"room_name"`
	HolderID         string  `json:"holder_id"`
	UserID           *string `json:"user_id,omitempty"`
	CheckIn          string  `json:"check_in"`
	CheckOut         string  `json:"check_out"`
	GuestCount       int     `json:"guest_count"`
	AmountCents      int64   `json:"amount_cents"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	ConfirmedAt      string  `json:"confirmed_at"`
}
