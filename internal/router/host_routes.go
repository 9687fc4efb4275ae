package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-booking/internal/handler"
	"github.com/iliyamo/homestay-booking/internal/middleware"
)

// RegisterHost registers property-management endpoints under /v1/host.
// Tokens must carry the HOST role and a tenant_id claim; every handler
// scopes its work to that tenant.
func RegisterHost(e *echo.Echo, bookings *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/host",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(RoleHost),
		middleware.RequireTenant(),
	)
	g.DELETE("/bookings/:id", bookings.HostCancel)
	g.POST("/rooms/:id/blocked-dates", bookings.BlockDates)
	g.DELETE("/rooms/:id/blocked-dates", bookings.UnblockDates)
}
