// Package router wires handlers onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-booking/internal/handler"
)

// Roles accepted in the JWT "role" claim.
const (
	RoleGuest = "GUEST"
	RoleHost  = "HOST"
)

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterPublic registers unauthenticated endpoints: availability, the
// cached calendar and the upload-link pair used from a phone.
func RegisterPublic(e *echo.Echo, rooms *handler.RoomHandler, ev *handler.EvidenceHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/rooms/:id/availability", rooms.Availability)
	e.GET("/v1/rooms/:id/calendar", rooms.Calendar, cache)
	e.GET("/v1/upload-tokens/:token", ev.UploadTokenStatus)
	e.POST("/v1/upload-tokens/:token/evidence", ev.SubmitWithToken)
}
