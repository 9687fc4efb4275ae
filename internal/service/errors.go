package service

import (
	"fmt"
	"time"

	"github.com/iliyamo/homestay-booking/internal/model"
)

// Kind classifies an expected, user-facing outcome of a booking operation.
type Kind string

const (
	KindLockConflict       Kind = "lock_conflict"
	KindDatesUnavailable   Kind = "dates_unavailable"
	KindDuplicateEvidence  Kind = "duplicate_evidence"
	KindAmountMismatch     Kind = "amount_mismatch"
	KindVerificationFailed Kind = "verification_failed"
	KindRateLimited        Kind = "rate_limited"
	KindInvalidRequest     Kind = "invalid_request"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindInvalidState       Kind = "invalid_state"
)

// OutcomeError is a typed rejection.  Callers match on Kind through
// errors.Is against the sentinel values below, or errors.As for details.
// Anything that is not an *OutcomeError is an unexpected failure.
type OutcomeError struct {
	Kind    Kind
	Message string

	HeldUntil         time.Time              // lock_conflict
	RetryAfter        time.Duration          // rate_limited
	Conflicts         []model.BookingSummary // dates_unavailable
	Blocked           []time.Time            // dates_unavailable
	OriginalBookingID uint64                 // duplicate_evidence
	ExpectedCents     int64                  // amount_mismatch
	VerifiedCents     int64                  // amount_mismatch

	Err error
}

func (e *OutcomeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *OutcomeError) Unwrap() error { return e.Err }

// Is matches any *OutcomeError of the same Kind.
func (e *OutcomeError) Is(target error) bool {
	t, ok := target.(*OutcomeError)
	return ok && t.Kind == e.Kind
}

var (
	ErrLockConflict       = &OutcomeError{Kind: KindLockConflict}
	ErrDatesUnavailable   = &OutcomeError{Kind: KindDatesUnavailable}
	ErrDuplicateEvidence  = &OutcomeError{Kind: KindDuplicateEvidence}
	ErrAmountMismatch     = &OutcomeError{Kind: KindAmountMismatch}
	ErrVerificationFailed = &OutcomeError{Kind: KindVerificationFailed}
	ErrRateLimited        = &OutcomeError{Kind: KindRateLimited}
	ErrInvalidRequest     = &OutcomeError{Kind: KindInvalidRequest}
	ErrNotFound           = &OutcomeError{Kind: KindNotFound}
	ErrForbidden          = &OutcomeError{Kind: KindForbidden}
	ErrInvalidState       = &OutcomeError{Kind: KindInvalidState}
)

func outcome(kind Kind, msg string) *OutcomeError {
	return &OutcomeError{Kind: kind, Message: msg}
}

func invalid(msg string) *OutcomeError { return outcome(KindInvalidRequest, msg) }
