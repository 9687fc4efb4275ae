package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/config"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/queue"
	"github.com/iliyamo/homestay-booking/internal/repository"
)

// SubmitInput is one payment evidence submission.
type SubmitInput struct {
	RoomID              uint64
	Range               model.DateRange
	HolderID            string
	UserID              *string
	ClientIP            string
	Evidence            []byte
	Filename            string
	ExpectedAmountCents int64
	GuestCount          int
	Notes               string
}

// ConfirmationResult describes a confirmed booking.
type ConfirmationResult struct {
	Booking     model.Booking
	ContentHash string
	EvidenceURL string
}

// ConfirmationService runs the evidence-to-confirmation protocol.
type ConfirmationService struct {
	bookings  BookingStore
	rooms     RoomStore
	confirmer Confirmer
	evidence  *EvidenceService
	locks     *LockService
	settings  *SettingsService
	verifier  SlipVerifier
	archive   SlipArchive
	publisher EventPublisher
	limiter   AttemptLimiter
	clock     clock.Clock
	policy    config.Policy
	log       *logrus.Logger

	wg sync.WaitGroup
}

// ConfirmationDeps groups the collaborators of ConfirmationService.
type ConfirmationDeps struct {
	Bookings  BookingStore
	Rooms     RoomStore
	Confirmer Confirmer
	Evidence  *EvidenceService
	Locks     *LockService
	Settings  *SettingsService
	Verifier  SlipVerifier
	Archive   SlipArchive    // optional
	Publisher EventPublisher // optional
	Limiter   AttemptLimiter // optional
	Clock     clock.Clock
	Policy    config.Policy
	Log       *logrus.Logger
}

func NewConfirmationService(d ConfirmationDeps) *ConfirmationService {
	return &ConfirmationService{
		bookings:  d.Bookings,
		rooms:     d.Rooms,
		confirmer: d.Confirmer,
		evidence:  d.Evidence,
		locks:     d.Locks,
		settings:  d.Settings,
		verifier:  d.Verifier,
		archive:   d.Archive,
		publisher: d.Publisher,
		limiter:   d.Limiter,
		clock:     d.Clock,
		policy:    d.Policy,
		log:       d.Log,
	}
}

// Wait blocks until in-flight event publications finish.
func (s *ConfirmationService) Wait() { s.wg.Wait() }

// SubmitEvidence screens, verifies and commits one payment slip.  The steps
// run strictly in order: rate limit, content-hash duplicate check,
// availability and lock validation, draft creation, external verification,
// slip archiving, then the single confirming transaction.  A draft created by this call is
// deleted on every failure path, including panics.
func (s *ConfirmationService) SubmitEvidence(ctx context.Context, in SubmitInput) (res ConfirmationResult, err error) {
	if err := s.checkRate(ctx, in); err != nil {
		return ConfirmationResult{}, err
	}
	if strings.TrimSpace(in.HolderID) == "" {
		return ConfirmationResult{}, invalid("holder is required")
	}
	if !in.Range.CheckIn.Before(in.Range.CheckOut) {
		return ConfirmationResult{}, invalid(model.ErrInvalidRange.Error())
	}
	if in.ExpectedAmountCents <= 0 {
		return ConfirmationResult{}, invalid("expected amount must be positive")
	}
	if err := s.evidence.Validate(in.Evidence); err != nil {
		return ConfirmationResult{}, err
	}

	// 1. content hash
	hash := Fingerprint(in.Evidence)
	dup, err := s.evidence.CheckHash(ctx, hash)
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("check evidence hash: %w", err)
	}
	if dup.Duplicate {
		return ConfirmationResult{}, duplicateErr(dup.OriginalBookingID)
	}

	// 2. availability and lock; Acquire re-runs the availability check
	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return ConfirmationResult{}, mapRoomErr(err)
	}
	lock, err := s.locks.Acquire(ctx, LockRequest{RoomID: in.RoomID, HolderID: in.HolderID, Range: in.Range})
	if err != nil {
		return ConfirmationResult{}, err
	}
	if !lock.Granted {
		return ConfirmationResult{}, lock.Err()
	}

	// 3. reuse or create the draft
	booking, fresh, err := s.draftFor(ctx, room, in)
	if err != nil {
		return ConfirmationResult{}, err
	}
	if fresh {
		defer func() {
			if r := recover(); r != nil {
				s.discardDraft(ctx, booking.ID)
				panic(r)
			}
			if err != nil {
				s.discardDraft(ctx, booking.ID)
			}
		}()
	}

	// 4. verify, outside any transaction
	result, vErr := s.verifier.Verify(ctx, in.Evidence, in.Filename)
	if vErr != nil {
		s.log.WithError(vErr).WithField("booking_id", booking.ID).Warn("slip verification errored")
		return ConfirmationResult{}, &OutcomeError{Kind: KindVerificationFailed,
			Message: "we could not verify this payment slip right now, please try again", Err: vErr}
	}
	if !result.Success {
		msg := "the payment slip could not be verified"
		if result.Message != "" {
			msg += ": " + result.Message
		}
		return ConfirmationResult{}, outcome(KindVerificationFailed, msg)
	}

	// 5. amount, reference, commit
	if diff := result.AmountCents - in.ExpectedAmountCents; diff > s.policy.AmountToleranceCents || -diff > s.policy.AmountToleranceCents {
		return ConfirmationResult{}, &OutcomeError{Kind: KindAmountMismatch,
			Message:       "the transferred amount does not match the booking total",
			ExpectedCents: in.ExpectedAmountCents, VerifiedCents: result.AmountCents}
	}
	var ref *string
	if r := strings.TrimSpace(result.Reference); r != "" {
		dup, err := s.evidence.CheckReference(ctx, r)
		if err != nil {
			return ConfirmationResult{}, fmt.Errorf("check evidence reference: %w", err)
		}
		if dup.Duplicate {
			return ConfirmationResult{}, duplicateErr(dup.OriginalBookingID)
		}
		ref = &r
	}

	// Only slips that passed every check are archived.
	url := s.saveSlip(ctx, room.TenantID, hash, in.Evidence)
	confirmed, err := s.confirmer.Confirm(ctx, repository.ConfirmInput{
		BookingID:   booking.ID,
		EvidenceURL: url,
		Evidence: model.PaymentEvidence{
			ContentHash:       hash,
			ExternalReference: ref,
			AmountCents:       result.AmountCents,
			VerifiedAt:        s.clock.Now().Truncate(time.Second),
			VerifierPayload:   result.Payload,
		},
	})
	switch {
	case errors.Is(err, repository.ErrDuplicateEvidence):
		return ConfirmationResult{}, duplicateErr(0)
	case errors.Is(err, repository.ErrBookingNotFound), errors.Is(err, repository.ErrConflict):
		return ConfirmationResult{}, outcome(KindInvalidState, "this booking can no longer be confirmed")
	case err != nil:
		return ConfirmationResult{}, fmt.Errorf("confirm booking: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": confirmed.ID, "room_id": confirmed.RoomID, "holder_id": confirmed.HolderID,
		"amount_cents": result.AmountCents,
	}).Info("booking confirmed")
	s.publishConfirmed(confirmed, room, result.AmountCents)
	return ConfirmationResult{Booking: confirmed, ContentHash: hash, EvidenceURL: url}, nil
}

func duplicateErr(original uint64) error {
	return &OutcomeError{Kind: KindDuplicateEvidence,
		Message:           "this payment slip has already been used for another booking",
		OriginalBookingID: original}
}

func (s *ConfirmationService) checkRate(ctx context.Context, in SubmitInput) error {
	if s.limiter == nil {
		return nil
	}
	keys := []string{"holder:" + in.HolderID}
	if in.ClientIP != "" {
		keys = append(keys, "ip:"+in.ClientIP)
	}
	for _, key := range keys {
		d, err := s.limiter.Take(ctx, key)
		if err != nil {
			s.log.WithError(err).Warn("evidence rate limiter unavailable")
			return nil
		}
		if !d.Allowed {
			return &OutcomeError{Kind: KindRateLimited,
				Message: "too many verification attempts, please wait before trying again", RetryAfter: d.RetryAfter}
		}
	}
	return nil
}

// draftFor returns the holder's unverified booking for exactly this stay,
// creating a draft when there is none.  fresh is true only for a new draft.
func (s *ConfirmationService) draftFor(ctx context.Context, room model.Room, in SubmitInput) (model.Booking, bool, error) {
	existing, err := s.bookings.FindUnverified(ctx, in.RoomID, in.HolderID, in.Range)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("find unverified booking: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}
	st, err := s.settings.Get(ctx, room.TenantID)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("load tenant settings: %w", err)
	}
	guests := in.GuestCount
	if guests <= 0 {
		guests = 1
	}
	b := model.Booking{
		TenantID:        room.TenantID,
		RoomID:          in.RoomID,
		HolderID:        in.HolderID,
		UserID:          in.UserID,
		CheckIn:         in.Range.CheckIn,
		CheckOut:        in.Range.CheckOut,
		GuestCount:      guests,
		TotalPriceCents: in.ExpectedAmountCents,
		Notes:           in.Notes,
		Status:          st.InitialStatus(),
		IsDraft:         true,
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return model.Booking{}, false, outcome(KindDatesUnavailable, "these dates were just booked by someone else")
		}
		return model.Booking{}, false, fmt.Errorf("create draft booking: %w", err)
	}
	return b, true, nil
}

// discardDraft deletes a draft even if the request context is gone.
func (s *ConfirmationService) discardDraft(ctx context.Context, id uint64) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.DraftCleanupTimeout)
	defer cancel()
	deleted, err := s.bookings.DeleteDraft(cctx, id)
	entry := s.log.WithField("booking_id", id)
	if err != nil {
		entry.WithError(err).Error("draft booking cleanup failed")
		return
	}
	if deleted {
		entry.Info("draft booking discarded")
	}
}

func (s *ConfirmationService) saveSlip(ctx context.Context, tenantID uint64, hash string, image []byte) string {
	if s.archive == nil {
		return ""
	}
	url, err := s.archive.SaveSlip(ctx, tenantID, hash, image)
	if err != nil {
		s.log.WithError(err).Warn("archive payment slip failed")
		return ""
	}
	return url
}

func (s *ConfirmationService) publishConfirmed(b model.Booking, room model.Room, amount int64) {
	if s.publisher == nil {
		return
	}
	ev := queue.BookingConfirmedEvent{
		BookingID:   b.ID,
		TenantID:    b.TenantID,
		RoomID:      b.RoomID,
		RoomName:    room.Name,
		HolderID:    b.HolderID,
		UserID:      b.UserID,
		CheckIn:     b.CheckIn.Format(model.DateLayout),
		CheckOut:    b.CheckOut.Format(model.DateLayout),
		GuestCount:  b.GuestCount,
		AmountCents: amount,
	}
	if b.PaymentReference != nil {
		ev.PaymentReference = *b.PaymentReference
	}
	if b.PaymentVerifiedAt != nil {
		ev.ConfirmedAt = b.PaymentVerifiedAt.UTC().Format(time.RFC3339)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.publisher.PublishBookingConfirmed(ctx, ev); err != nil {
			s.log.WithError(err).WithField("booking_id", ev.BookingID).Warn("publish booking.confirmed failed")
		}
	}()
}
