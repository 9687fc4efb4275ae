package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/service"
)

// RoomHandler serves availability, calendars and reservation locks.
type RoomHandler struct {
	Avail AvailabilityAPI
	Locks LockAPI
	Log   *logrus.Logger
}

func NewRoomHandler(avail AvailabilityAPI, locks LockAPI, log *logrus.Logger) *RoomHandler {
	return &RoomHandler{Avail: avail, Locks: locks, Log: log}
}

// Availability handles GET /v1/rooms/:id/availability?check_in&check_out.
// Locks are reported separately: a room can be free of bookings while
// another guest is mid-payment.
func (h *RoomHandler) Availability(c echo.Context) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	rng, msg := stayRange(c.QueryParam("check_in"), c.QueryParam("check_out"))
	if msg != "" {
		return badRequest(c, msg)
	}
	ctx := c.Request().Context()
	av, err := h.Avail.Check(ctx, roomID, rng, service.CheckOptions{})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	lock, err := h.Locks.IsLocked(ctx, roomID, rng, "")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"available":  av.Available && !lock.Locked,
		"booked":     len(av.Conflicts) > 0,
		"conflicts":  nonNil(av.Conflicts),
		"blocked":    dates(av.Blocked),
		"locked":     lock.Locked,
		"held_until": timestamp(lock.HeldUntil),
	})
}

// Calendar handles GET /v1/rooms/:id/calendar?from&to.
func (h *RoomHandler) Calendar(c echo.Context) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	window, msg := stayRange(c.QueryParam("from"), c.QueryParam("to"))
	if msg != "" {
		return badRequest(c, "from and to must be dates with from before to")
	}
	cal, err := h.Avail.Calendar(c.Request().Context(), roomID, window)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, cal)
}

// AcquireLock handles POST /v1/rooms/:id/lock.  A denial is 409 with the
// reason; held_until tells the guest when the other checkout lapses.
func (h *RoomHandler) AcquireLock(c echo.Context) error {
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
	res, err := h.Locks.Acquire(c.Request().Context(), service.LockRequest{RoomID: roomID, HolderID: holder, Range: rng})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if !res.Granted {
		return respondError(c, h.Log, res.Err())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"granted":    true,
		"refreshed":  res.Refreshed,
		"expires_at": timestamp(res.ExpiresAt),
	})
}

// ReleaseLock handles DELETE /v1/rooms/:id/lock?check_in&check_out.
func (h *RoomHandler) ReleaseLock(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	rng, msg := stayRange(c.QueryParam("check_in"), c.QueryParam("check_out"))
	if msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Locks.Release(c.Request().Context(), roomID, holder, rng); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LockStatus handles GET /v1/rooms/:id/lock?check_in&check_out and reports
// whether someone other than the caller is completing payment.
func (h *RoomHandler) LockStatus(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	rng, msg := stayRange(c.QueryParam("check_in"), c.QueryParam("check_out"))
	if msg != "" {
		return badRequest(c, msg)
	}
	st, err := h.Locks.IsLocked(c.Request().Context(), roomID, rng, holder)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"locked": st.Locked, "held_until": timestamp(st.HeldUntil)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
