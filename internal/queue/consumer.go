package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/notify"
)

// RecipientLookup resolves the host address for a tenant.  An empty address
// means the tenant opted out of email.
type RecipientLookup func(ctx context.Context, tenantID uint64) (string, error)

// Consumer turns booking.confirmed messages into host notifications.
type Consumer struct {
	url       string
	notifier  notify.Notifier
	recipient RecipientLookup
	log       *logrus.Logger
}

// NewConsumer wires a Consumer.
func NewConsumer(url string, notifier notify.Notifier, recipient RecipientLookup, log *logrus.Logger) *Consumer {
	return &Consumer{url: url, notifier: notifier, recipient: recipient, log: log}
}

// Run connects to RabbitMQ, declares the durable queue and consumes until
// ctx is cancelled, reconnecting with exponential backoff whenever the
// connection or delivery channel drops.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).Warnf("booking-consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.WithError(err).Warn("booking-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.log.WithError(err).Warn("booking-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.log.WithError(err).Error("booking-consumer: handle message failed")
				_ = d.Nack(false, false) // do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	to, err := c.recipient(ctx, ev.TenantID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if to == "" {
		c.log.WithField("booking_id", ev.BookingID).Debug("tenant has no notify email; skipping")
		return nil
	}
	return c.notifier.BookingConfirmed(ctx, to, notify.BookingConfirmed{
		BookingID:   ev.BookingID,
		RoomName:    ev.RoomName,
		CheckIn:     ev.CheckIn,
		CheckOut:    ev.CheckOut,
		GuestCount:  ev.GuestCount,
		AmountCents: ev.AmountCents,
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
