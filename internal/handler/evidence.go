package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/service"
)

// EvidenceHandler accepts payment slips directly and through upload links.
type EvidenceHandler struct {
	Confirm  EvidenceAPI
	Tokens   UploadTokenAPI
	MaxBytes int64
	Log      *logrus.Logger
}

func NewEvidenceHandler(confirm EvidenceAPI, tokens UploadTokenAPI, maxBytes int64, log *logrus.Logger) *EvidenceHandler {
	return &EvidenceHandler{Confirm: confirm, Tokens: tokens, MaxBytes: maxBytes, Log: log}
}

// readSlip reads the multipart "slip" file, refusing anything above MaxBytes.
func (h *EvidenceHandler) readSlip(c echo.Context) ([]byte, string, string) {
	fh, err := c.FormFile("slip")
	if err != nil {
		return nil, "", "slip file is required"
	}
	if h.MaxBytes > 0 && fh.Size > h.MaxBytes {
		return nil, "", "payment slip is too large"
	}
	data, err := readAll(fh, h.MaxBytes)
	if err != nil {
		return nil, "", "could not read slip file"
	}
	if h.MaxBytes > 0 && int64(len(data)) > h.MaxBytes {
		return nil, "", "payment slip is too large"
	}
	return data, fh.Filename, ""
}

func readAll(fh *multipart.FileHeader, max int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if max > 0 {
		r = io.LimitReader(f, max+1)
	}
	return io.ReadAll(r)
}

func confirmationView(res service.ConfirmationResult) echo.Map {
	return echo.Map{
		"booking":      viewBooking(res.Booking),
		"content_hash": res.ContentHash,
	}
}

// Submit handles POST /v1/rooms/:id/evidence (multipart: slip, check_in,
// check_out, expected_amount_cents, guest_count, notes).
func (h *EvidenceHandler) Submit(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	rng, msg := stayRange(c.FormValue("check_in"), c.FormValue("check_out"))
	if msg != "" {
		return badRequest(c, msg)
	}
	amount, err := strconv.ParseInt(c.FormValue("expected_amount_cents"), 10, 64)
	if err != nil || amount <= 0 {
		return badRequest(c, "expected_amount_cents must be a positive integer")
	}
	guests, _ := strconv.Atoi(c.FormValue("guest_count"))
	slip, filename, msg := h.readSlip(c)
	if msg != "" {
		return badRequest(c, msg)
	}

	res, err := h.Confirm.SubmitEvidence(c.Request().Context(), service.SubmitInput{
		RoomID:              roomID,
		Range:               rng,
		HolderID:            holder,
		UserID:              &holder,
		ClientIP:            c.RealIP(),
		Evidence:            slip,
		Filename:            filename,
		ExpectedAmountCents: amount,
		GuestCount:          guests,
		Notes:               c.FormValue("notes"),
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, confirmationView(res))
}

// CreateUploadToken handles POST /v1/upload-tokens.  The raw token is
// returned once; the client turns it into a link or QR code.
func (h *EvidenceHandler) CreateUploadToken(c echo.Context) error {
	holder, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		RoomID          uint64 `json:"room_id"`
		CheckIn         string `json:"check_in"`
		CheckOut        string `json:"check_out"`
		GuestCount      int    `json:"guest_count"`
		TotalPriceCents int64  `json:"total_price_cents"`
		Notes           string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.RoomID == 0 {
		return badRequest(c, "room_id is required")
	}
	rng, msg := stayRange(body.CheckIn, body.CheckOut)
	if msg != "" {
		return badRequest(c, msg)
	}
	tok, err := h.Tokens.Create(c.Request().Context(), service.UploadTokenInput{
		RoomID:          body.RoomID,
		HolderID:        holder,
		UserID:          &holder,
		Range:           rng,
		GuestCount:      body.GuestCount,
		TotalPriceCents: body.TotalPriceCents,
		Notes:           body.Notes,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": tok.Raw, "expires_at": timestamp(tok.ExpiresAt)})
}

// UploadTokenStatus handles GET /v1/upload-tokens/:token.
func (h *EvidenceHandler) UploadTokenStatus(c echo.Context) error {
	st, err := h.Tokens.Status(c.Request().Context(), c.Param("token"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// SubmitWithToken handles POST /v1/upload-tokens/:token/evidence.  The token
// authorises the upload; no session is needed on the uploading device.
func (h *EvidenceHandler) SubmitWithToken(c echo.Context) error {
	slip, filename, msg := h.readSlip(c)
	if msg != "" {
		return badRequest(c, msg)
	}
	res, err := h.Tokens.Fulfil(c.Request().Context(), c.Param("token"), slip, filename, c.RealIP())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, confirmationView(res))
}
