// Package notify sends host-facing notifications about booking events.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/sirupsen/logrus"
)

// BookingConfirmed is the data a host notification needs.
type BookingConfirmed struct {
	BookingID   uint64
	RoomName    string
	CheckIn     string
	CheckOut    string
	GuestCount  int
	AmountCents int64
}

// Notifier delivers booking notifications.
type Notifier interface {
	BookingConfirmed(ctx context.Context, to string, b BookingConfirmed) error
}

// Mailer sends notifications through MailerSend.
type Mailer struct {
	client     *mailersend.Mailersend
	fromEmail  string
	fromName   string
	templateID string
	log        *logrus.Logger
}

// NewMailer returns a MailerSend-backed Notifier.  When templateID is empty
// a plain-text body is sent instead of a template.
func NewMailer(apiKey, fromName, fromEmail, templateID string, log *logrus.Logger) *Mailer {
	return &Mailer{
		client:     mailersend.NewMailersend(apiKey),
		fromEmail:  fromEmail,
		fromName:   fromName,
		templateID: templateID,
		log:        log,
	}
}

func (m *Mailer) BookingConfirmed(ctx context.Context, to string, b BookingConfirmed) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(mailersend.From{Name: m.fromName, Email: m.fromEmail})
	msg.SetRecipients([]mailersend.Recipient{{Email: to}})
	msg.SetSubject(fmt.Sprintf("New confirmed booking #%d", b.BookingID))
	if m.templateID != "" {
		msg.SetTemplateID(m.templateID)
		msg.SetPersonalization([]mailersend.Personalization{{
			Email: to,
			Data: map[string]interface{}{
				"booking_id":  b.BookingID,
				"room":        b.RoomName,
				"check_in":    b.CheckIn,
				"check_out":   b.CheckOut,
				"guest_count": b.GuestCount,
				"amount":      formatAmount(b.AmountCents),
			},
		}})
	} else {
		msg.SetText(PlainText(b))
	}

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send booking email: %w", err)
	}
	m.log.WithFields(logrus.Fields{
		"booking_id": b.BookingID,
		"message_id": res.Header.Get("X-Message-Id"),
	}).Info("host notified of confirmed booking")
	return nil
}

// PlainText renders the fallback email body.
func PlainText(b BookingConfirmed) string {
	return fmt.Sprintf("Booking #%d is confirmed.\nRoom: %s\nStay: %s to %s\nGuests: %d\nPaid: %s\n",
		b.BookingID, b.RoomName, b.CheckIn, b.CheckOut, b.GuestCount, formatAmount(b.AmountCents))
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// LogNotifier records notifications without sending them; used when no
// email provider is configured.
type LogNotifier struct{ Log *logrus.Logger }

func (n LogNotifier) BookingConfirmed(_ context.Context, to string, b BookingConfirmed) error {
	n.Log.WithFields(logrus.Fields{"to": to, "booking_id": b.BookingID}).Info("booking confirmed (email disabled)")
	return nil
}
