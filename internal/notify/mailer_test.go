package notify

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	body := PlainText(BookingConfirmed{BookingID: 12, RoomName: "Garden Room", CheckIn: "2025-06-10",
		CheckOut: "2025-06-12", GuestCount: 2, AmountCents: 300050})

	assert.Contains(t, body, "Booking #12 is confirmed.")
	assert.Contains(t, body, "2025-06-10 to 2025-06-12")
	assert.Contains(t, body, "Paid: 3000.50")
}

func TestLogNotifier(t *testing.T) {
	log, hook := test.NewNullLogger()
	n := LogNotifier{Log: log}

	require.NoError(t, n.BookingConfirmed(context.Background(), "host@example.com", BookingConfirmed{BookingID: 3}))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, uint64(3), hook.LastEntry().Data["booking_id"])
}
