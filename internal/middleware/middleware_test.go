package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/homestay-booking/internal/config"
	"github.com/iliyamo/homestay-booking/internal/ratelimit"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth_SetsIdentity(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		tid, _ := TenantID(c)
		return c.JSON(http.StatusOK, echo.Map{"holder": HolderID(c), "role": Role(c), "tenant": tid})
	}, JWTAuth(secret))

	tok := sign(t, jwt.MapClaims{"sub": "guest-42", "role": "HOST", "tenant_id": float64(7), "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"holder":"guest-42","role":"HOST","tenant":7}`, rec.Body.String())
}

func TestJWTAuth_Rejects(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, JWTAuth(secret))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	expired := sign(t, jwt.MapClaims{"sub": "a", "exp": time.Now().Add(-time.Minute).Unix()})
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	noSub := sign(t, jwt.MapClaims{"role": "GUEST"})
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+noSub)
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestRequireRoleAndTenant(t *testing.T) {
	e := echo.New()
	e.GET("/host", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		JWTAuth(secret), RequireRole("HOST"), RequireTenant())

	guest := sign(t, jwt.MapClaims{"sub": "a", "role": "GUEST"})
	req := httptest.NewRequest(http.MethodGet, "/host", nil)
	req.Header.Set("Authorization", "Bearer "+guest)
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	hostNoTenant := sign(t, jwt.MapClaims{"sub": "h", "role": "HOST"})
	req = httptest.NewRequest(http.MethodGet, "/host", nil)
	req.Header.Set("Authorization", "Bearer "+hostNoTenant)
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	host := sign(t, jwt.MapClaims{"sub": "h", "role": "HOST", "tenant_id": "3"})
	req = httptest.NewRequest(http.MethodGet, "/host", nil)
	req.Header.Set("Authorization", "Bearer "+host)
	assert.Equal(t, http.StatusNoContent, serve(e, req).Code)
}

func TestTokenBucket_ReturnsRetryAfter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log, _ := logtest.NewNullLogger()
	lim := ratelimit.New(rdb, config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl",
	})

	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(lim, log))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestTokenBucket_FailsOpenWithoutRedis(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewTokenBucket(ratelimit.New(nil, config.RateLimitConfig{Enabled: true, Capacity: 1}), log))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
}

func TestRedisCache_HitAfterMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}

	calls := 0
	e := echo.New()
	e.GET("/rooms/:id/calendar", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"room": c.Param("id")})
	}, NewRedisCache(cfg, rdb))

	first := serve(e, httptest.NewRequest(http.MethodGet, "/rooms/1/calendar?from=a", nil))
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, httptest.NewRequest(http.MethodGet, "/rooms/1/calendar?from=a", nil))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	other := serve(e, httptest.NewRequest(http.MethodGet, "/rooms/2/calendar?from=a", nil))
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestRequestLog_AssignsID(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	e := echo.New()
	e.Use(RequestLog(log))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, RequestID(c)) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	id := rec.Header().Get(echo.HeaderXRequestID)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rec.Body.String())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, http.StatusOK, hook.LastEntry().Data["status"])
}
