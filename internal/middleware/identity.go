package middleware

import "github.com/labstack/echo/v4"

// Context keys written by JWTAuth and RequestLog.
const (
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxTenantID  = "tenant_id"
	ctxRequestID = "request_id"
)

// HolderID returns the authenticated subject, or "" when unauthenticated.
// The subject doubles as the reservation lock holder.
func HolderID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Role returns the role claim, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}

// TenantID returns the tenant claim of a host token.
func TenantID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxTenantID).(uint64)
	return id, ok
}

// RequestID returns the id assigned by RequestLog.
func RequestID(c echo.Context) string {
	s, _ := c.Get(ctxRequestID).(string)
	return s
}

// userID extracts a rate-limit identity; anonymous callers share "guest".
func userID(c echo.Context) string {
	if id := HolderID(c); id != "" {
		return id
	}
	return "guest"
}
