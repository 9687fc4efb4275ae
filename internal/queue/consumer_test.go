package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/homestay-booking/internal/notify"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) BookingConfirmed(ctx context.Context, to string, b notify.BookingConfirmed) error {
	args := m.Called(ctx, to, b)
	return args.Error(0)
}

func eventBody(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(BookingConfirmedEvent{BookingID: 9, TenantID: 2, RoomName: "Teak House",
		CheckIn: "2025-06-10", CheckOut: "2025-06-12", GuestCount: 2, AmountCents: 300000})
	require.NoError(t, err)
	return b
}

func TestHandle_NotifiesHost(t *testing.T) {
	log, _ := test.NewNullLogger()
	n := new(mockNotifier)
	n.On("BookingConfirmed", mock.Anything, "host@example.com", notify.BookingConfirmed{
		BookingID: 9, RoomName: "Teak House", CheckIn: "2025-06-10", CheckOut: "2025-06-12", GuestCount: 2, AmountCents: 300000,
	}).Return(nil)

	c := NewConsumer("", n, func(ctx context.Context, tenantID uint64) (string, error) {
		assert.Equal(t, uint64(2), tenantID)
		return "host@example.com", nil
	}, log)

	require.NoError(t, c.Handle(context.Background(), eventBody(t)))
	n.AssertExpectations(t)
}

func TestHandle_SkipsTenantsWithoutEmail(t *testing.T) {
	log, _ := test.NewNullLogger()
	n := new(mockNotifier)
	c := NewConsumer("", n, func(context.Context, uint64) (string, error) { return "", nil }, log)

	require.NoError(t, c.Handle(context.Background(), eventBody(t)))
	n.AssertNotCalled(t, "BookingConfirmed", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_Errors(t *testing.T) {
	log, _ := test.NewNullLogger()
	n := new(mockNotifier)
	c := NewConsumer("", n, func(context.Context, uint64) (string, error) { return "", errors.New("db down") }, log)

	assert.Error(t, c.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, c.Handle(context.Background(), eventBody(t)))
}
