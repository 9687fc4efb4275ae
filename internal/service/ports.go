package service

import (
	"context"
	"time"

	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/queue"
	"github.com/iliyamo/homestay-booking/internal/ratelimit"
	"github.com/iliyamo/homestay-booking/internal/repository"
	"github.com/iliyamo/homestay-booking/internal/verifier"
)

// LockStore is the persistence behind the Lock Store.  Acquire must be
// atomic: two concurrent calls for overlapping ranges by different holders
// can never both be granted.
type LockStore interface {
	Acquire(ctx context.Context, l model.ReservationLock, now time.Time) (repository.LockOutcome, error)
	ActiveConflict(ctx context.Context, roomID uint64, rng model.DateRange, excludeHolder string, now time.Time) (*time.Time, error)
	HolderLock(ctx context.Context, roomID uint64, holderID string, rng model.DateRange, now time.Time) (*time.Time, error)
	Release(ctx context.Context, roomID uint64, holderID string, rng model.DateRange) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// BookingStore persists bookings.  Create must reject overlap with any
// occupying booking of the same room with repository.ErrOverlap.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (model.Booking, error)
	ListByHolder(ctx context.Context, holderID string) ([]model.Booking, error)
	ListOverlapping(ctx context.Context, roomID uint64, rng model.DateRange) ([]model.Booking, error)
	FindUnverified(ctx context.Context, roomID uint64, holderID string, rng model.DateRange) (*model.Booking, error)
	DeleteDraft(ctx context.Context, id uint64) (bool, error)
	Cancel(ctx context.Context, id uint64, allowed []model.BookingStatus, now time.Time) (model.Booking, error)
	DeleteStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error)
	CompletePast(ctx context.Context, today time.Time) (int64, error)
}

// EvidenceLedger looks up previously used payment evidence.
type EvidenceLedger interface {
	FindByHash(ctx context.Context, hash string) (*model.PaymentEvidence, error)
	FindByReference(ctx context.Context, ref string) (*model.PaymentEvidence, error)
}

// Confirmer commits a verified payment atomically.
type Confirmer interface {
	Confirm(ctx context.Context, in repository.ConfirmInput) (model.Booking, error)
}

// RoomStore reads rooms and their blackout calendar.
type RoomStore interface {
	GetByID(ctx context.Context, id uint64) (model.Room, error)
	BlockedDates(ctx context.Context, roomID uint64, rng model.DateRange) ([]time.Time, error)
	Block(ctx context.Context, roomID uint64, dates []time.Time, reason string) error
	Unblock(ctx context.Context, roomID uint64, rng model.DateRange) (int64, error)
}

// SettingsStore reads tenant booking policy.
type SettingsStore interface {
	GetSettings(ctx context.Context, tenantID uint64) (model.TenantSettings, error)
}

// UploadTokenStore persists cross-device upload tokens.
type UploadTokenStore interface {
	Create(ctx context.Context, t *model.UploadToken) error
	GetByHash(ctx context.Context, tokenHash string) (model.UploadToken, error)
	MarkUploaded(ctx context.Context, id uint64, slipURL, contentHash string, bookingID uint64, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SlipVerifier judges a payment slip image.
type SlipVerifier interface {
	Verify(ctx context.Context, image []byte, filename string) (verifier.Result, error)
}

// EventPublisher emits booking events.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// AttemptLimiter takes one token from a named bucket.
type AttemptLimiter interface {
	Take(ctx context.Context, key string) (ratelimit.Decision, error)
}

// SlipArchive stores evidence images and returns a retrievable URL.
type SlipArchive interface {
	SaveSlip(ctx context.Context, tenantID uint64, contentHash string, image []byte) (string, error)
}
