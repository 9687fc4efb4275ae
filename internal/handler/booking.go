package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/middleware"
	"github.com/iliyamo/homestay-booking/internal/service"
)

// BookingHandler exposes the guest and host booking lifecycle.
type BookingHandler struct {
	Bookings BookingAPI
	Log      *logrus.Logger
}

func NewBookingHandler(bookings BookingAPI, log *logrus.Logger) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Log: log}
}

// Checkout handles POST /v1/rooms/:id/checkout: lock the dates and open an
// unverified booking priced from the room rate.
func (h *BookingHandler) Checkout(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var body stayBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	rng, msg := stayRange(body.CheckIn, body.CheckOut)
	if msg != "" {
		return badRequest(c, msg)
	}
	res, err := h.Bookings.StartCheckout(c.Request().Context(), service.CheckoutInput{
		RoomID:     roomID,
		HolderID:   holder,
		UserID:     &holder,
		Range:      rng,
		GuestCount: body.GuestCount,
		Notes:      body.Notes,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking":         viewBooking(res.Booking),
		"lock_expires_at": timestamp(res.ExpiresAt),
	})
}

// ListMine handles GET /v1/my-bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Bookings.ListMine(c.Request().Context(), holder)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	out := make([]bookingView, 0, len(list))
	for _, b := range list {
		out = append(out, viewBooking(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Bookings.Get(c.Request().Context(), id, holder)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, viewBooking(b))
}

// Cancel handles DELETE /v1/bookings/:id for the booking's guest.
func (h *BookingHandler) Cancel(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Bookings.CancelByGuest(c.Request().Context(), id, holder)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, viewBooking(b))
}

// HostCancel handles DELETE /v1/host/bookings/:id.
func (h *BookingHandler) HostCancel(c echo.Context) error {
	tenantID, _ := middleware.TenantID(c)
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Bookings.CancelByHost(c.Request().Context(), id, tenantID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, viewBooking(b))
}

// BlockDates handles POST /v1/host/rooms/:id/blocked-dates with
// {"from","to","reason"}; to is exclusive.
func (h *BookingHandler) BlockDates(c echo.Context) error {
	tenantID, _ := middleware.TenantID(c)
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var body struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	rng, msg := stayRange(body.From, body.To)
	if msg != "" {
		return badRequest(c, "from and to must be dates with from before to")
	}
	if err := h.Bookings.BlockDates(c.Request().Context(), roomID, tenantID, rng, body.Reason); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"blocked": dates(rng.Nights())})
}

// UnblockDates handles DELETE /v1/host/rooms/:id/blocked-dates?from&to.
func (h *BookingHandler) UnblockDates(c echo.Context) error {
	tenantID, _ := middleware.TenantID(c)
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	rng, msg := stayRange(c.QueryParam("from"), c.QueryParam("to"))
	if msg != "" {
		return badRequest(c, "from and to must be dates with from before to")
	}
	n, err := h.Bookings.UnblockDates(c.Request().Context(), roomID, tenantID, rng)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": n})
}
