package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/service"
)

type mockLocks struct{ mock.Mock }

func (m *mockLocks) Acquire(ctx context.Context, req service.LockRequest) (service.LockResult, error) {
	a := m.Called(ctx, req)
	return a.Get(0).(service.LockResult), a.Error(1)
}

func (m *mockLocks) Release(ctx context.Context, roomID uint64, holderID string, rng model.DateRange) error {
	return m.Called(ctx, roomID, holderID, rng).Error(0)
}

func (m *mockLocks) IsLocked(ctx context.Context, roomID uint64, rng model.DateRange, exclude string) (service.LockStatus, error) {
	a := m.Called(ctx, roomID, rng, exclude)
	return a.Get(0).(service.LockStatus), a.Error(1)
}

type mockAvail struct{ mock.Mock }

func (m *mockAvail) Check(ctx context.Context, roomID uint64, rng model.DateRange, opts service.CheckOptions) (service.AvailabilityResult, error) {
	a := m.Called(ctx, roomID, rng, opts)
	return a.Get(0).(service.AvailabilityResult), a.Error(1)
}

func (m *mockAvail) Calendar(ctx context.Context, roomID uint64, window model.DateRange) (service.Calendar, error) {
	a := m.Called(ctx, roomID, window)
	return a.Get(0).(service.Calendar), a.Error(1)
}

type mockConfirm struct{ mock.Mock }

func (m *mockConfirm) SubmitEvidence(ctx context.Context, in service.SubmitInput) (service.ConfirmationResult, error) {
	a := m.Called(ctx, in)
	return a.Get(0).(service.ConfirmationResult), a.Error(1)
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) StartCheckout(ctx context.Context, in service.CheckoutInput) (service.CheckoutResult, error) {
	a := m.Called(ctx, in)
	return a.Get(0).(service.CheckoutResult), a.Error(1)
}

func (m *mockBookings) Get(ctx context.Context, id uint64, holder string) (model.Booking, error) {
	a := m.Called(ctx, id, holder)
	return a.Get(0).(model.Booking), a.Error(1)
}

func (m *mockBookings) ListMine(ctx context.Context, holder string) ([]model.Booking, error) {
	a := m.Called(ctx, holder)
	return a.Get(0).([]model.Booking), a.Error(1)
}

func (m *mockBookings) CancelByGuest(ctx context.Context, id uint64, holder string) (model.Booking, error) {
	a := m.Called(ctx, id, holder)
	return a.Get(0).(model.Booking), a.Error(1)
}

func (m *mockBookings) CancelByHost(ctx context.Context, id, tenantID uint64) (model.Booking, error) {
	a := m.Called(ctx, id, tenantID)
	return a.Get(0).(model.Booking), a.Error(1)
}

func (m *mockBookings) BlockDates(ctx context.Context, roomID, tenantID uint64, rng model.DateRange, reason string) error {
	return m.Called(ctx, roomID, tenantID, rng, reason).Error(0)
}

func (m *mockBookings) UnblockDates(ctx context.Context, roomID, tenantID uint64, rng model.DateRange) (int64, error) {
	a := m.Called(ctx, roomID, tenantID, rng)
	return a.Get(0).(int64), a.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) Create(ctx context.Context, in service.UploadTokenInput) (service.IssuedUploadToken, error) {
	a := m.Called(ctx, in)
	return a.Get(0).(service.IssuedUploadToken), a.Error(1)
}

func (m *mockTokens) Status(ctx context.Context, raw string) (service.UploadTokenStatus, error) {
	a := m.Called(ctx, raw)
	return a.Get(0).(service.UploadTokenStatus), a.Error(1)
}

func (m *mockTokens) Fulfil(ctx context.Context, raw string, evidence []byte, filename, ip string) (service.ConfirmationResult, error) {
	a := m.Called(ctx, raw, evidence, filename, ip)
	return a.Get(0).(service.ConfirmationResult), a.Error(1)
}
