package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/homestay-booking/internal/clock"
	"github.com/iliyamo/homestay-booking/internal/config"
	"github.com/iliyamo/homestay-booking/internal/model"
	"github.com/iliyamo/homestay-booking/internal/queue"
	"github.com/iliyamo/homestay-booking/internal/ratelimit"
	"github.com/iliyamo/homestay-booking/internal/repository"
	"github.com/iliyamo/homestay-booking/internal/verifier"
)

// memStore is an in-memory stand-in for the MySQL schema.  One mutex plays
// the role of the transaction: nights keyed by (room, night) reproduce the
// booking_nights primary key, hashes and references reproduce the evidence
// unique keys.
type memStore struct {
	mu sync.Mutex

	rooms    map[uint64]model.Room
	settings map[uint64]model.TenantSettings
	blocked  map[uint64]map[time.Time]string

	locks    []model.ReservationLock
	bookings map[uint64]*model.Booking
	nights   map[nightKey]uint64
	evidence []model.PaymentEvidence
	tokens   map[uint64]*model.UploadToken
	nextID   uint64

	failLocks error
	clk       clock.Clock
}

type nightKey struct {
	room  uint64
	night time.Time
}

func newMemStore() *memStore {
	return &memStore{
		rooms:    map[uint64]model.Room{},
		settings: map[uint64]model.TenantSettings{},
		blocked:  map[uint64]map[time.Time]string{},
		bookings: map[uint64]*model.Booking{},
		nights:   map[nightKey]uint64{},
		tokens:   map[uint64]*model.UploadToken{},
	}
}

func (m *memStore) id() uint64 { m.nextID++; return m.nextID }

// rooms

func (m *memStore) GetByID(_ context.Context, id uint64) (model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return model.Room{}, repository.ErrRoomNotFound
	}
	return r, nil
}

func (m *memStore) BlockedDates(_ context.Context, roomID uint64, rng model.DateRange) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for d := range m.blocked[roomID] {
		if !d.Before(rng.CheckIn) && d.Before(rng.CheckOut) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *memStore) Block(_ context.Context, roomID uint64, dates []time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocked[roomID] == nil {
		m.blocked[roomID] = map[time.Time]string{}
	}
	for _, d := range dates {
		m.blocked[roomID][model.Day(d)] = reason
	}
	return nil
}

func (m *memStore) Unblock(_ context.Context, roomID uint64, rng model.DateRange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for d := range m.blocked[roomID] {
		if !d.Before(rng.CheckIn) && d.Before(rng.CheckOut) {
			delete(m.blocked[roomID], d)
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetSettings(_ context.Context, tenantID uint64) (model.TenantSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.settings[tenantID]
	if !ok {
		return model.TenantSettings{}, repository.ErrSettingsNotFound
	}
	return st, nil
}

// locks

type memLocks struct{ *memStore }

func (m memLocks) Acquire(_ context.Context, l model.ReservationLock, now time.Time) (repository.LockOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLocks != nil {
		return repository.LockOutcome{}, m.failLocks
	}
	if _, ok := m.rooms[l.RoomID]; !ok {
		return repository.LockOutcome{}, repository.ErrRoomNotFound
	}
	if held := m.conflict(l.RoomID, l.Range(), l.HolderID, now); held != nil {
		return repository.LockOutcome{HeldUntil: *held}, nil
	}
	for i := range m.locks {
		own := &m.locks[i]
		if own.RoomID == l.RoomID && own.HolderID == l.HolderID && (own.Range().Equal(l.Range()) ||
			(!clock.Expired(own.ExpiresAt, now) && own.Range().Covers(l.Range()))) {
			own.ExpiresAt = l.ExpiresAt
			return repository.LockOutcome{Granted: true, Refreshed: true, ExpiresAt: l.ExpiresAt}, nil
		}
	}
	l.ID = m.id()
	l.CreatedAt = now
	m.locks = append(m.locks, l)
	return repository.LockOutcome{Granted: true, ExpiresAt: l.ExpiresAt}, nil
}

func (m *memStore) conflict(roomID uint64, rng model.DateRange, holder string, now time.Time) *time.Time {
	var held *time.Time
	for _, o := range m.locks {
		if o.RoomID != roomID || o.HolderID == holder || clock.Expired(o.ExpiresAt, now) || !o.Range().Overlaps(rng) {
			continue
		}
		if held == nil || o.ExpiresAt.After(*held) {
			t := o.ExpiresAt
			held = &t
		}
	}
	return held
}

func (m memLocks) ActiveConflict(_ context.Context, roomID uint64, rng model.DateRange, exclude string, now time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLocks != nil {
		return nil, m.failLocks
	}
	return m.conflict(roomID, rng, exclude, now), nil
}

func (m memLocks) HolderLock(_ context.Context, roomID uint64, holder string, rng model.DateRange, now time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLocks != nil {
		return nil, m.failLocks
	}
	var until *time.Time
	for _, l := range m.locks {
		if l.RoomID != roomID || l.HolderID != holder || clock.Expired(l.ExpiresAt, now) || !l.Range().Overlaps(rng) {
			continue
		}
		if until == nil || l.ExpiresAt.After(*until) {
			t := l.ExpiresAt
			until = &t
		}
	}
	return until, nil
}

func (m memLocks) Release(_ context.Context, roomID uint64, holder string, rng model.DateRange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked(roomID, holder, rng), nil
}

func (m *memStore) releaseLocked(roomID uint64, holder string, rng model.DateRange) int64 {
	var n int64
	kept := m.locks[:0]
	for _, l := range m.locks {
		if l.RoomID == roomID && l.HolderID == holder && l.Range().Overlaps(rng) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	m.locks = kept
	return n
}

func (m memLocks) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.locks[:0]
	for _, l := range m.locks {
		if clock.Expired(l.ExpiresAt, now) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	m.locks = kept
	return n, nil
}

func (m *memStore) lockCount(roomID uint64, holder string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.locks {
		if l.RoomID == roomID && l.HolderID == holder {
			n++
		}
	}
	return n
}

// bookings

type memBookings struct{ *memStore }

func (m memBookings) Create(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	nights := b.Range().Nights()
	for _, n := range nights {
		if _, taken := m.nights[nightKey{b.RoomID, n}]; taken {
			return repository.ErrOverlap
		}
	}
	b.ID = m.id()
	b.CreatedAt = m.clk.Now()
	cp := *b
	m.bookings[b.ID] = &cp
	for _, n := range nights {
		m.nights[nightKey{b.RoomID, n}] = b.ID
	}
	return nil
}

func (m *memStore) freeNights(id uint64) {
	for k, v := range m.nights {
		if v == id {
			delete(m.nights, k)
		}
	}
}

func (m memBookings) GetByID(_ context.Context, id uint64) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, repository.ErrBookingNotFound
	}
	return *b, nil
}

func (m memBookings) ListByHolder(_ context.Context, holder string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if b.HolderID == holder {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m memBookings) ListOverlapping(_ context.Context, roomID uint64, rng model.DateRange) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if b.RoomID == roomID && b.Status.Occupies() && b.Range().Overlaps(rng) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out, nil
}

func (m memBookings) FindUnverified(_ context.Context, roomID uint64, holder string, rng model.DateRange) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Booking
	for _, b := range m.bookings {
		if b.RoomID == roomID && b.HolderID == holder && b.Range().Equal(rng) && b.Status.Unverified() {
			if found == nil || b.ID > found.ID {
				cp := *b
				found = &cp
			}
		}
	}
	return found, nil
}

func (m memBookings) DeleteDraft(_ context.Context, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || !b.IsDraft || !b.Status.Unverified() || b.PaymentVerifiedAt != nil {
		return false, nil
	}
	delete(m.bookings, id)
	m.freeNights(id)
	return true, nil
}

func (m memBookings) Cancel(_ context.Context, id uint64, allowed []model.BookingStatus, now time.Time) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, repository.ErrBookingNotFound
	}
	permitted := false
	for _, s := range allowed {
		if s == b.Status {
			permitted = true
		}
	}
	if !permitted {
		return model.Booking{}, repository.ErrConflict
	}
	b.Status = model.StatusCancelled
	b.IsDraft = false
	b.CancelledAt = &now
	m.freeNights(id)
	return *b, nil
}

func (m memBookings) DeleteStaleUnverified(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.bookings {
		if b.Status.Unverified() && b.PaymentVerifiedAt == nil && b.CreatedAt.Before(cutoff) {
			delete(m.bookings, id)
			m.freeNights(id)
			n++
		}
	}
	return n, nil
}

func (m memBookings) CompletePast(_ context.Context, today time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.bookings {
		if b.Status == model.StatusConfirmed && b.CheckOut.Before(today) {
			b.Status = model.StatusCompleted
			m.freeNights(id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) occupying(roomID uint64) []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if b.RoomID == roomID && b.Status.Occupies() {
			out = append(out, *b)
		}
	}
	return out
}

// evidence and confirmation

type memEvidence struct{ *memStore }

func (m memEvidence) FindByHash(_ context.Context, hash string) (*model.PaymentEvidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.evidence {
		if e.ContentHash == hash {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memEvidence) FindByReference(_ context.Context, ref string) (*model.PaymentEvidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.evidence {
		if e.ExternalReference != nil && *e.ExternalReference == ref {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memEvidence) Confirm(_ context.Context, in repository.ConfirmInput) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[in.BookingID]
	if !ok {
		return model.Booking{}, repository.ErrBookingNotFound
	}
	if !b.Status.Unverified() || b.PaymentVerifiedAt != nil {
		return model.Booking{}, repository.ErrConflict
	}
	for _, e := range m.evidence {
		if e.ContentHash == in.Evidence.ContentHash ||
			(e.ExternalReference != nil && in.Evidence.ExternalReference != nil && *e.ExternalReference == *in.Evidence.ExternalReference) {
			return model.Booking{}, repository.ErrDuplicateEvidence
		}
	}
	ev := in.Evidence
	ev.ID = m.id()
	ev.BookingID = b.ID
	ev.TenantID = b.TenantID
	m.evidence = append(m.evidence, ev)

	b.Status = model.StatusConfirmed
	b.IsDraft = false
	at := ev.VerifiedAt
	b.PaymentVerifiedAt = &at
	b.PaymentReference = ev.ExternalReference
	b.VerificationPayload = ev.VerifierPayload
	if in.EvidenceURL != "" {
		url := in.EvidenceURL
		b.PaymentEvidenceURL = &url
	}
	m.releaseLocked(b.RoomID, b.HolderID, b.Range())
	return *b, nil
}

func (m *memStore) evidenceFor(bookingID uint64) *model.PaymentEvidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.evidence {
		if e.BookingID == bookingID {
			cp := e
			return &cp
		}
	}
	return nil
}

// upload tokens

type memTokens struct{ *memStore }

func (m memTokens) Create(_ context.Context, t *model.UploadToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m memTokens) GetByHash(_ context.Context, hash string) (model.UploadToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return *t, nil
		}
	}
	return model.UploadToken{}, repository.ErrUploadTokenNotFound
}

func (m memTokens) MarkUploaded(_ context.Context, id uint64, slipURL, contentHash string, bookingID uint64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.IsUploaded || clock.Expired(t.ExpiresAt, now) {
		return false, nil
	}
	t.IsUploaded = true
	t.SlipURL = &slipURL
	t.ContentHash = &contentHash
	t.BookingID = &bookingID
	return true, nil
}

func (m memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if !t.IsUploaded && clock.Expired(t.ExpiresAt, now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// collaborators

type mockVerifier struct{ mock.Mock }

func (v *mockVerifier) Verify(ctx context.Context, image []byte, filename string) (verifier.Result, error) {
	args := v.Called(ctx, image, filename)
	return args.Get(0).(verifier.Result), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingConfirmedEvent
	err    error
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type recordingArchive struct {
	mu     sync.Mutex
	hashes []string
}

func (a *recordingArchive) SaveSlip(_ context.Context, tenantID uint64, hash string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hashes = append(a.hashes, hash)
	return "https://slips.test/" + hash, nil
}

func (a *recordingArchive) saved() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.hashes...)
}

type stubLimiter struct {
	deny map[string]time.Duration
	keys []string
}

func (l *stubLimiter) Take(_ context.Context, key string) (ratelimit.Decision, error) {
	l.keys = append(l.keys, key)
	if d, ok := l.deny[key]; ok {
		return ratelimit.Decision{Allowed: false, RetryAfter: d}, nil
	}
	return ratelimit.Decision{Allowed: true, Remaining: 1}, nil
}

type panickingVerifier struct{}

func (panickingVerifier) Verify(context.Context, []byte, string) (verifier.Result, error) {
	panic("verifier exploded")
}

// harness wires every service over one memStore.
type harness struct {
	store    *memStore
	clock    *clock.Manual
	log      *logrus.Logger
	hook     *logtest.Hook
	policy   config.Policy
	verifier *mockVerifier
	pub      *recordingPublisher
	archive  *recordingArchive

	avail    *AvailabilityService
	locks    *LockService
	confirm  *ConfirmationService
	bookings *BookingService
	tokens   *UploadTokenService
	sweeper  *Sweeper
	evidence *EvidenceService
}

const (
	roomR   uint64 = 1
	roomS   uint64 = 2
	tenantT uint64 = 10
)

var testNow = time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)

func newHarness() *harness {
	return newHarnessWith(nil)
}

func newHarnessWith(v SlipVerifier) *harness {
	log, hook := logtest.NewNullLogger()
	h := &harness{
		store:    newMemStore(),
		clock:    clock.NewManual(testNow),
		log:      log,
		hook:     hook,
		policy:   config.DefaultPolicy(),
		verifier: &mockVerifier{},
		pub:      &recordingPublisher{},
		archive:  &recordingArchive{},
	}
	if v == nil {
		v = h.verifier
	}
	h.store.clk = h.clock
	h.store.rooms[roomR] = model.Room{ID: roomR, TenantID: tenantT, Name: "Garden Room", BasePriceCents: 50000, IsActive: true}
	h.store.rooms[roomS] = model.Room{ID: roomS, TenantID: tenantT, Name: "Sea View", BasePriceCents: 80000, IsActive: true}
	h.store.settings[tenantT] = model.TenantSettings{TenantID: tenantT, LockTTLMinutes: 15, OnlinePaymentEnabled: true, CancellationGraceHours: 24}

	settings := NewSettingsService(h.store, nil, h.policy, log)
	h.avail = NewAvailabilityService(memBookings{h.store}, h.store, memLocks{h.store}, h.clock)
	h.locks = NewLockService(memLocks{h.store}, h.store, h.avail, settings, h.clock, h.policy, log)
	h.evidence = NewEvidenceService(memEvidence{h.store}, h.policy.MaxEvidenceBytes)
	h.confirm = NewConfirmationService(ConfirmationDeps{
		Bookings:  memBookings{h.store},
		Rooms:     h.store,
		Confirmer: memEvidence{h.store},
		Evidence:  h.evidence,
		Locks:     h.locks,
		Settings:  settings,
		Verifier:  v,
		Archive:   h.archive,
		Publisher: h.pub,
		Clock:     h.clock,
		Policy:    h.policy,
		Log:       log,
	})
	h.bookings = NewBookingService(memBookings{h.store}, h.store, h.locks, settings, h.clock, log)
	h.tokens = NewUploadTokenService(memTokens{h.store}, h.store, h.confirm, h.clock, h.policy.UploadTokenTTL, log)
	h.sweeper = NewSweeper(memLocks{h.store}, memTokens{h.store}, memBookings{h.store}, h.bookings, h.clock, h.policy, log)
	return h
}

func rng(in, out string) model.DateRange {
	r, err := model.ParseDateRange(in, out)
	if err != nil {
		panic(err)
	}
	return r
}

func submit(room uint64, r model.DateRange, holder string, slip string, amount int64) SubmitInput {
	return SubmitInput{
		RoomID:              room,
		Range:               r,
		HolderID:            holder,
		ClientIP:            "203.0.113.7",
		Evidence:            []byte(slip),
		Filename:            "slip.jpg",
		ExpectedAmountCents: amount,
		GuestCount:          2,
	}
}
