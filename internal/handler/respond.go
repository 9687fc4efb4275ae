package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/middleware"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/service"
)

var kindStatus = map[service.Kind]int{
	service.KindLockConflict:       http.StatusConflict,
	service.KindDatesUnavailable:   http.StatusConflict,
	service.KindDuplicateEvidence:  http.StatusConflict,
	service.KindAmountMismatch:     http.StatusUnprocessableEntity,
	service.KindVerificationFailed: http.StatusBadGateway,
	service.KindRateLimited:        http.StatusTooManyRequests,
	service.KindInvalidRequest:     http.StatusBadRequest,
	service.KindNotFound:           http.StatusNotFound,
	service.KindForbidden:          http.StatusForbidden,
	service.KindInvalidState:       http.StatusConflict,
}

// respondError renders a typed outcome with its actionable message, or logs
// an unexpected failure and answers 503 so the client can retry.
func respondError(c echo.Context, log *logrus.Logger, err error) error {
	var oe *service.OutcomeError
	if !errors.As(err, &oe) {
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.RequestID(c),
			"path":       c.Path(),
		}).Error("request failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error":   "unavailable",
			"message": "the booking service is temporarily unavailable, please try again shortly",
		})
	}

	body := echo.Map{"error": string(oe.Kind), "message": oe.Message}
	switch oe.Kind {
	case service.KindLockConflict:
		body["held_until"] = timestamp(oe.HeldUntil)
	case service.KindDatesUnavailable:
		if len(oe.Conflicts) > 0 {
			body["conflicts"] = oe.Conflicts
		}
		if len(oe.Blocked) > 0 {
			body["blocked"] = dates(oe.Blocked)
		}
	case service.KindDuplicateEvidence:
		if oe.OriginalBookingID != 0 {
			body["original_booking_id"] = oe.OriginalBookingID
		}
	case service.KindAmountMismatch:
		body["expected_amount_cents"] = oe.ExpectedCents
		body["verified_amount_cents"] = oe.VerifiedCents
	case service.KindRateLimited:
		secs := int(math.Ceil(oe.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		body["retry_after"] = secs
	}
	status, ok := kindStatus[oe.Kind]
	if !ok {
		status = http.StatusBadRequest
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": string(service.KindInvalidRequest), "message": msg})
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func dates(ds []time.Time) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Format(model.DateLayout))
	}
	return out
}

// bookingView is the JSON shape of a booking.
type bookingView struct {
	ID                 uint64              `json:"id"`
	RoomID             uint64              `json:"room_id"`
	CheckIn            string              `json:"check_in"`
	CheckOut           string              `json:"check_out"`
	GuestCount         int                 `json:"guest_count"`
	TotalPriceCents    int64               `json:"total_price_cents"`
	Notes              string              `json:"notes,omitempty"`
	Status             model.BookingStatus `json:"status"`
	PaymentEvidenceURL *string             `json:"payment_evidence_url,omitempty"`
	PaymentReference   *string             `json:"payment_reference,omitempty"`
	PaymentVerifiedAt  string              `json:"payment_verified_at,omitempty"`
	CancelledAt        string              `json:"cancelled_at,omitempty"`
	CreatedAt          string              `json:"created_at,omitempty"`
}

func viewBooking(b model.Booking) bookingView {
	v := bookingView{
		ID:                 b.ID,
		RoomID:             b.RoomID,
		CheckIn:            b.CheckIn.Format(model.DateLayout),
		CheckOut:           b.CheckOut.Format(model.DateLayout),
		GuestCount:         b.GuestCount,
		TotalPriceCents:    b.TotalPriceCents,
		Notes:              b.Notes,
		Status:             b.Status,
		PaymentEvidenceURL: b.PaymentEvidenceURL,
		PaymentReference:   b.PaymentReference,
		CreatedAt:          timestamp(b.CreatedAt),
	}
	if b.PaymentVerifiedAt != nil {
		v.PaymentVerifiedAt = timestamp(*b.PaymentVerifiedAt)
	}
	if b.CancelledAt != nil {
		v.CancelledAt = timestamp(*b.CancelledAt)
	}
	return v
}
