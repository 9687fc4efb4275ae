package handler

import (
	"context"

	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/service"
)

// The handler layer depends on these narrow views of the services so routes
// can be tested without a database.

type LockAPI interface {
	Acquire(ctx context.Context, req service.LockRequest) (service.LockResult, error)
	Release(ctx context.Context, roomID uint64, holderID string, rng model.DateRange) error
	IsLocked(ctx context.Context, roomID uint64, rng model.DateRange, excludeHolder string) (service.LockStatus, error)
}

type AvailabilityAPI interface {
	Check(ctx context.Context, roomID uint64, rng model.DateRange, opts service.CheckOptions) (service.AvailabilityResult, error)
	Calendar(ctx context.Context, roomID uint64, window model.DateRange) (service.Calendar, error)
}

type EvidenceAPI interface {
	SubmitEvidence(ctx context.Context, in service.SubmitInput) (service.ConfirmationResult, error)
}

type BookingAPI interface {
	StartCheckout(ctx context.Context, in service.CheckoutInput) (service.CheckoutResult, error)
	Get(ctx context.Context, id uint64, holderID string) (model.Booking, error)
	ListMine(ctx context.Context, holderID string) ([]model.Booking, error)
	CancelByGuest(ctx context.Context, id uint64, holderID string) (model.Booking, error)
	CancelByHost(ctx context.Context, id, tenantID uint64) (model.Booking, error)
	BlockDates(ctx context.Context, roomID, tenantID uint64, rng model.DateRange, reason string) error
	UnblockDates(ctx context.Context, roomID, tenantID uint64, rng model.DateRange) (int64, error)
}

type UploadTokenAPI interface {
	Create(ctx context.Context, in service.UploadTokenInput) (service.IssuedUploadToken, error)
	Status(ctx context.Context, raw string) (service.UploadTokenStatus, error)
	Fulfil(ctx context.Context, raw string, evidence []byte, filename, clientIP string) (service.ConfirmationResult, error)
}
