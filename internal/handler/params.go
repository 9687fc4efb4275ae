package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homestay-booking/internal/middleware"
	"github.com/iliyamo/homestay-booking/internal/model"
)

var errUnauthorized = errors.New("unauthorized")

// getUserID returns the authenticated holder id.
func getUserID(c echo.Context) (string, error) {
	id := middleware.HolderID(c)
	if id == "" {
		return "", errUnauthorized
	}
	return id, nil
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// stayRange parses check_in/check_out and returns a message on failure.
func stayRange(checkIn, checkOut string) (model.DateRange, string) {
	if checkIn == "" || checkOut == "" {
		return model.DateRange{}, "check_in and check_out are required (YYYY-MM-DD)"
	}
	r, err := model.ParseDateRange(checkIn, checkOut)
	if err != nil {
		return model.DateRange{}, err.Error()
	}
	return r, ""
}

// stayBody is the JSON body shared by lock and checkout requests.
type stayBody struct {
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	GuestCount int    `json:"guest_count"`
	Notes      string `json:"notes"`
}
