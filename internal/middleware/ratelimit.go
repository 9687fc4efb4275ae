package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/ratelimit"
)

// NewTokenBucket throttles requests through a Redis token bucket.  Redis
// errors fail open: the request proceeds and the error is logged.
func NewTokenBucket(l *ratelimit.Limiter, log *logrus.Logger) echo.MiddlewareFunc {
	if !l.Enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	cfg := l.Config()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg.KeyStrategy, c)
			d, err := l.Take(c.Request().Context(), key)
			if err != nil {
				log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				secs := retryAfterSeconds(d.RetryAfter.Milliseconds())
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					log.WithFields(logrus.Fields{"key": key, "retry_after": secs}).Info("rate limited")
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate_limited",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(ms int64) int {
	secs := int(math.Ceil(float64(ms) / 1000.0))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func buildRateKey(strategy string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	var parts []string
	switch strings.ToLower(strategy) {
	case "ip":
		parts = []string{"ip", ip}
	case "user":
		parts = []string{"user", uid}
	case "route":
		parts = []string{"route", route}
	case "ip_user":
		parts = []string{"ip", ip, "user", uid}
	case "ip_route":
		parts = []string{"ip", ip, "route", route}
	case "user_route":
		parts = []string{"user", uid, "route", route}
	default:
		parts = []string{"ip", ip, "user", uid, "route", route}
	}
	return strings.Join(parts, ":")
}
