package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/homestay-booking/internal/handler"
)

const secret = "router-test-secret"

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newEcho() *echo.Echo {
	log := logrus.New()
	e := echo.New()
	rooms := handler.NewRoomHandler(nil, nil, log)
	bookings := handler.NewBookingHandler(nil, log)
	ev := handler.NewEvidenceHandler(nil, nil, 1<<20, log)
	RegisterGuest(e, rooms, bookings, ev, secret)
	RegisterHost(e, bookings, secret)
	return e
}

func do(e *echo.Echo, method, path, bearer string) int {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestGuestRoutesRequireToken(t *testing.T) {
	e := newEcho()
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/my-bookings", ""))
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/v1/rooms/1/lock", "garbage"))

	other := token(t, jwt.MapClaims{"sub": "u1", "role": "ADMIN"})
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/v1/bookings/1", other))

	guest := token(t, jwt.MapClaims{"sub": "u1", "role": RoleGuest})
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/bookings/abc", guest))
}

func TestHostRoutesRequireHostWithTenant(t *testing.T) {
	e := newEcho()
	guest := token(t, jwt.MapClaims{"sub": "u1", "role": RoleGuest})
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodDelete, "/v1/host/bookings/1", guest))

	noTenant := token(t, jwt.MapClaims{"sub": "h1", "role": RoleHost})
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodDelete, "/v1/host/bookings/1", noTenant))

	host := token(t, jwt.MapClaims{"sub": "h1", "role": RoleHost, "tenant_id": "7"})
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodDelete, "/v1/host/bookings/abc", host))
}
