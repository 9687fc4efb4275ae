package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends booking events to RabbitMQ.  Each publish dials its own
// short-lived connection so a broker outage never leaves a stale channel
// behind; confirmations are rare enough for this to be cheap.
type Publisher struct {
	url string
	log *logrus.Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *logrus.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// PublishBookingConfirmed publishes ev to the booking.confirmed queue as a
// persistent JSON message.  Errors are logged and returned so the caller
// can ignore them without interrupting the request flow.
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
	entry := p.log.WithField("booking_id", ev.BookingID)

	conn, err := amqp.Dial(p.url)
	if err != nil {
		entry.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		entry.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		entry.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", BookingConfirmedQueue, false, false, pub); err != nil {
		entry.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}
