package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and the reachability of MySQL and Redis.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

// Health returns 200 when MySQL answers.  Redis is reported but optional:
// without it rate limiting and caching degrade, bookings still work.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	out := echo.Map{"status": "ok", "database": "ok", "redis": "disabled"}
	status := http.StatusOK
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			out["status"], out["database"] = "degraded", "down"
			status = http.StatusServiceUnavailable
		}
	}
	if h.Redis != nil {
		out["redis"] = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			out["redis"] = "down"
		}
	}
	return c.JSON(status, out)
}
