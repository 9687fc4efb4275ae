package model

import "time"

// PaymentEvidence is the append-only ledger entry proving a slip was used.
// ContentHash and ExternalReference are each globally unique; a row is
// written exactly once, in the transaction that confirms its booking.
type PaymentEvidence struct {
	ID                uint64    // payment_evidence.id
	ContentHash       string    // payment_evidence.content_hash (sha256 hex)
	ExternalReference *string   // payment_evidence.external_reference (nullable)
	BookingID         uint64    // payment_evidence.booking_id
	TenantID          uint64    // payment_evidence.tenant_id
	AmountCents       int64     // payment_evidence.amount_cents
	VerifiedAt        time.Time // payment_evidence.verified_at
	VerifierPayload   []byte    // payment_evidence.verifier_payload (JSON)
}
