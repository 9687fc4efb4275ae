package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/repository"
	"github.com/iliyamo/homestay-booking/internal/utils"
)

// UploadTokenInput binds checkout parameters to a handoff token.
type UploadTokenInput struct {
	RoomID          uint64
	HolderID        string
	UserID          *string
	Range           model.DateRange
	GuestCount      int
	TotalPriceCents int64
	Notes           string
}

// IssuedUploadToken is returned once to the guest; Raw is never stored.
type IssuedUploadToken struct {
	Raw       string
	ExpiresAt time.Time
}

// UploadTokenStatus is what the desktop session polls.
type UploadTokenStatus struct {
	Expired    bool    `json:"expired"`
	IsUploaded bool    `json:"is_uploaded"`
	SlipURL    *string `json:"slip_url,omitempty"`
	BookingID  *uint64 `json:"booking_id,omitempty"`
	ExpiresAt  string  `json:"expires_at"`
}

// UploadTokenService hands a pending checkout to another device.
type UploadTokenService struct {
	tokens  UploadTokenStore
	rooms   RoomStore
	confirm *ConfirmationService
	clock   clock.Clock
	ttl     time.Duration
	log     *logrus.Logger
}

func NewUploadTokenService(tokens UploadTokenStore, rooms RoomStore, confirm *ConfirmationService,
	clk clock.Clock, ttl time.Duration, log *logrus.Logger) *UploadTokenService {
	return &UploadTokenService{tokens: tokens, rooms: rooms, confirm: confirm, clock: clk, ttl: ttl, log: log}
}

// Create issues a single-use token for the given checkout.
func (s *UploadTokenService) Create(ctx context.Context, in UploadTokenInput) (IssuedUploadToken, error) {
	if strings.TrimSpace(in.HolderID) == "" {
		return IssuedUploadToken{}, invalid("holder is required")
	}
	if !in.Range.CheckIn.Before(in.Range.CheckOut) {
		return IssuedUploadToken{}, invalid(model.ErrInvalidRange.Error())
	}
	if in.TotalPriceCents <= 0 {
		return IssuedUploadToken{}, invalid("total price must be positive")
	}
	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return IssuedUploadToken{}, mapRoomErr(err)
	}
	raw, err := utils.RandomHex(32)
	if err != nil {
		return IssuedUploadToken{}, fmt.Errorf("generate upload token: %w", err)
	}
	t := model.UploadToken{
		TokenHash:       utils.HashToken(raw),
		HolderID:        in.HolderID,
		UserID:          in.UserID,
		TenantID:        room.TenantID,
		RoomID:          in.RoomID,
		CheckIn:         in.Range.CheckIn,
		CheckOut:        in.Range.CheckOut,
		GuestCount:      in.GuestCount,
		TotalPriceCents: in.TotalPriceCents,
		Notes:           in.Notes,
		ExpiresAt:       clock.ExpiresAt(s.clock.Now(), s.ttl),
	}
	if err := s.tokens.Create(ctx, &t); err != nil {
		return IssuedUploadToken{}, fmt.Errorf("store upload token: %w", err)
	}
	return IssuedUploadToken{Raw: raw, ExpiresAt: t.ExpiresAt}, nil
}

func (s *UploadTokenService) lookup(ctx context.Context, raw string) (model.UploadToken, error) {
	if raw == "" {
		return model.UploadToken{}, outcome(KindNotFound, "upload link not found")
	}
	t, err := s.tokens.GetByHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrUploadTokenNotFound) {
		return model.UploadToken{}, outcome(KindNotFound, "upload link not found")
	}
	return t, err
}

// Status reports the token's state for polling.
func (s *UploadTokenService) Status(ctx context.Context, raw string) (UploadTokenStatus, error) {
	t, err := s.lookup(ctx, raw)
	if err != nil {
		return UploadTokenStatus{}, err
	}
	return UploadTokenStatus{
		Expired:    !t.IsUploaded && clock.Expired(t.ExpiresAt, s.clock.Now()),
		IsUploaded: t.IsUploaded,
		SlipURL:    t.SlipURL,
		BookingID:  t.BookingID,
		ExpiresAt:  t.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Fulfil submits evidence under the token's bound checkout and consumes the
// token on success.  A failed submission leaves it usable until expiry.
func (s *UploadTokenService) Fulfil(ctx context.Context, raw string, evidence []byte, filename, clientIP string) (ConfirmationResult, error) {
	t, err := s.lookup(ctx, raw)
	if err != nil {
		return ConfirmationResult{}, err
	}
	if t.IsUploaded {
		return ConfirmationResult{}, outcome(KindInvalidState, "this upload link has already been used")
	}
	if clock.Expired(t.ExpiresAt, s.clock.Now()) {
		return ConfirmationResult{}, outcome(KindInvalidState, "this upload link has expired, please start again")
	}

	res, err := s.confirm.SubmitEvidence(ctx, SubmitInput{
		RoomID:              t.RoomID,
		Range:               t.Range(),
		HolderID:            t.HolderID,
		UserID:              t.UserID,
		ClientIP:            clientIP,
		Evidence:            evidence,
		Filename:            filename,
		ExpectedAmountCents: t.TotalPriceCents,
		GuestCount:          t.GuestCount,
		Notes:               t.Notes,
	})
	if err != nil {
		return ConfirmationResult{}, err
	}

	marked, err := s.tokens.MarkUploaded(ctx, t.ID, res.EvidenceURL, res.ContentHash, res.Booking.ID, s.clock.Now())
	if err != nil {
		s.log.WithError(err).WithField("upload_token_id", t.ID).Error("mark upload token used failed")
	} else if !marked {
		s.log.WithField("upload_token_id", t.ID).Warn("upload token was consumed concurrently")
	}
	return res, nil
}
