package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-booking/internal/handler"
	"github.com/iliyamo/homestay-booking/internal/middleware"
)

// RegisterGuest registers checkout endpoints under /v1.  Every route needs a
// valid JWT; hosts may book as guests too.
func RegisterGuest(e *echo.Echo, rooms *handler.RoomHandler, bookings *handler.BookingHandler, ev *handler.EvidenceHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(RoleGuest, RoleHost),
	)
	g.POST("/rooms/:id/lock", rooms.AcquireLock)
	g.DELETE("/rooms/:id/lock", rooms.ReleaseLock)
	g.GET("/rooms/:id/lock", rooms.LockStatus)
	g.POST("/rooms/:id/checkout", bookings.Checkout)
	g.POST("/rooms/:id/evidence", ev.Submit)
	g.POST("/upload-tokens", ev.CreateUploadToken)
	g.GET("/my-bookings", bookings.ListMine)
	g.GET("/bookings/:id", bookings.Get)
	g.DELETE("/bookings/:id", bookings.Cancel)
}
