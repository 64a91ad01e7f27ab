package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/config"
	"github.com/staylet/rental-booking-backend/internal/events"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/pkg/payment"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustDate(s string) time.Time {
	t, err := models.ParseStayDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustRange(in, out string) models.DateRange {
	return models.DateRange{CheckIn: mustDate(in), CheckOut: mustDate(out)}
}

// ============================================================================
// BOOKING STORE
// ============================================================================

// memoryBookingStore applies the same rules as the SQL ledger under one mutex
type memoryBookingStore struct {
	mu       sync.Mutex
	bookings []*models.Booking
	seq      int
}

func newMemoryBookingStore() *memoryBookingStore {
	return &memoryBookingStore{}
}

func copyBooking(b *models.Booking) *models.Booking {
	c := *b
	return &c
}

func (m *memoryBookingStore) Create(draft *models.BookingDraft) (*models.Booking, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if draft.PaymentReference != nil {
		for _, b := range m.bookings {
			if b.PaymentReference != nil && *b.PaymentReference == *draft.PaymentReference {
				return nil, models.ErrDuplicatePayment
			}
		}
	}
	for _, b := range m.bookings {
		if b.ListingID == draft.ListingID && b.Status == models.BookingStatusConfirmed && b.Stay().Overlaps(draft.Stay) {
			return nil, models.ErrConflict
		}
	}

	m.seq++
	ref := fmt.Sprintf("REF%03d", m.seq)
	now := time.Now().UTC().Add(time.Duration(m.seq) * time.Millisecond)
	b := &models.Booking{
		ID:                uuid.New(),
		BookingReference:  &ref,
		UserID:            draft.Owner.UserID,
		ListingID:         draft.ListingID,
		CheckIn:           draft.Stay.CheckIn,
		CheckOut:          draft.Stay.CheckOut,
		TotalPrice:        draft.TotalPrice,
		Status:            models.BookingStatusConfirmed,
		PaymentStatus:     draft.PaymentStatus,
		PaymentReference:  draft.PaymentReference,
		CheckoutSessionID: draft.CheckoutSessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if draft.Owner.UserID == nil {
		name, phone := draft.Owner.GuestName, draft.Owner.GuestPhone
		b.GuestName, b.GuestPhone = &name, &phone
		if draft.Owner.GuestEmail != "" {
			email := draft.Owner.GuestEmail
			b.GuestEmail = &email
		}
	}
	m.bookings = append(m.bookings, b)
	return copyBooking(b), nil
}

func (m *memoryBookingStore) find(match func(*models.Booking) bool) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if match(b) {
			return copyBooking(b)
		}
	}
	return nil
}

func (m *memoryBookingStore) GetByID(id uuid.UUID) (*models.Booking, error) {
	return m.find(func(b *models.Booking) bool { return b.ID == id }), nil
}

func (m *memoryBookingStore) GetByReference(reference, guestPhone string) (*models.Booking, error) {
	return m.find(func(b *models.Booking) bool {
		return b.Reference() == reference && b.GuestPhone != nil && *b.GuestPhone == guestPhone
	}), nil
}

func (m *memoryBookingStore) GetByPaymentReference(paymentReference string) (*models.Booking, error) {
	return m.find(func(b *models.Booking) bool {
		return b.PaymentReference != nil && *b.PaymentReference == paymentReference
	}), nil
}

func (m *memoryBookingStore) ListByUser(userID uuid.UUID) ([]*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.IsOwnedBy(userID) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryBookingStore) HasConfirmedOverlap(listingID int64, stay models.DateRange) (bool, error) {
	return m.find(func(b *models.Booking) bool {
		return b.ListingID == listingID && b.Status == models.BookingStatusConfirmed && b.Stay().Overlaps(stay)
	}) != nil, nil
}

func (m *memoryBookingStore) ListUnavailableRanges(listingID int64, since time.Time) ([]models.DateRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DateRange
	for _, b := range m.bookings {
		if b.ListingID == listingID && b.Status == models.BookingStatusConfirmed && !b.CheckOut.Before(since) {
			out = append(out, b.Stay())
		}
	}
	return out, nil
}

func (m *memoryBookingStore) TransitionToCancelled(id uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID != id {
			continue
		}
		if b.Status != models.BookingStatusConfirmed {
			return nil, models.ErrAlreadyCancelled
		}
		now := time.Now().UTC()
		b.Status = models.BookingStatusCancelled
		b.CancelledAt = &now
		return copyBooking(b), nil
	}
	return nil, models.ErrNotFound
}

func (m *memoryBookingStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

// ============================================================================
// LISTINGS, SESSIONS, LIMITER, CACHE
// ============================================================================

type memoryListingStore struct {
	listings map[int64]*models.Listing
	batches  int
}

func newMemoryListingStore(listings ...*models.Listing) *memoryListingStore {
	m := &memoryListingStore{listings: map[int64]*models.Listing{}}
	for _, l := range listings {
		m.listings[l.ID] = l
	}
	return m
}

func (m *memoryListingStore) GetByID(id int64) (*models.Listing, error) {
	return m.listings[id], nil
}

func (m *memoryListingStore) List() ([]*models.Listing, error) {
	out := make([]*models.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		out = append(out, l)
	}
	return out, nil
}

func (m *memoryListingStore) GetByIDs(ids []int64) ([]*models.Listing, error) {
	m.batches++
	var out []*models.Listing
	for _, id := range ids {
		if l, ok := m.listings[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.CheckoutSession
	expire   []int64 // scripted ExpireOpenSessions results
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: map[string]*models.CheckoutSession{}}
}

func (m *memorySessionStore) Create(session *models.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.ID = uuid.New()
	session.Status = models.CheckoutSessionOpen
	c := *session
	m.sessions[session.GatewaySessionID] = &c
	return nil
}

func (m *memorySessionStore) GetByGatewaySessionID(id string) (*models.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *memorySessionStore) MarkCompleted(id string, bookingID uuid.UUID, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Status = models.CheckoutSessionCompleted
		s.BookingID = &bookingID
		s.PaymentReference = &paymentRef
	}
	return nil
}

func (m *memorySessionStore) MarkRefunded(id, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Status = models.CheckoutSessionRefunded
		s.PaymentReference = &paymentRef
	}
	return nil
}

func (m *memorySessionStore) ExpireOpenSessions(limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.expire) == 0 {
		return 0, nil
	}
	n := m.expire[0]
	m.expire = m.expire[1:]
	return n, nil
}

func (m *memorySessionStore) status(id string) models.CheckoutSessionStatus {
	s, _ := m.GetByGatewaySessionID(id)
	if s == nil {
		return ""
	}
	return s.Status
}

type fakeLimiter struct {
	checkErr error
	failures []string
}

func (f *fakeLimiter) CheckGuestLookup(reference, ip string) error { return f.checkErr }

func (f *fakeLimiter) RecordFailedLookup(reference, ip string) error {
	f.failures = append(f.failures, reference+"|"+ip)
	return nil
}

type mapCache struct {
	mu          sync.Mutex
	entries     map[int64][]models.DateRange
	invalidated []int64
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[int64][]models.DateRange{}}
}

func (c *mapCache) Get(ctx context.Context, id int64) ([]models.DateRange, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[id]
	return r, ok, nil
}

func (c *mapCache) Set(ctx context.Context, id int64, r []models.DateRange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = r
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// ============================================================================
// PAYMENT GATEWAY
// ============================================================================

// fakeGateway keeps created sessions and lets tests mark them paid
type fakeGateway struct {
	mu        sync.Mutex
	created   []payment.SessionRequest
	sessions  map[string]*payment.SessionResult
	refunds   []string
	createErr error
	getErr    error
	refundErr error
	webhook   *payment.WebhookEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*payment.SessionResult{}}
}

func (g *fakeGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	id := fmt.Sprintf("cs_test_%d", len(g.created))
	g.sessions[id] = &payment.SessionResult{
		ID:            id,
		PaymentStatus: "unpaid",
		AmountTotal:   req.AmountCents,
		Currency:      req.Currency,
		Metadata:      req.Metadata,
	}
	return &payment.Session{ID: id, URL: "https://checkout.example/" + id, ExpiresAt: req.ExpiresAt}, nil
}

func (g *fakeGateway) pay(id, paymentRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[id]
	s.Paid = true
	s.PaymentStatus = "paid"
	s.PaymentReference = paymentRef
}

func (g *fakeGateway) RetrieveSession(ctx context.Context, id string) (*payment.SessionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, paymentRef)
	for _, s := range g.sessions {
		if s.PaymentReference == paymentRef {
			s.Refunded = true
		}
	}
	return nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if signature != "valid" || g.webhook == nil {
		return nil, payment.ErrInvalidSignature
	}
	return g.webhook, nil
}

func (g *fakeGateway) PublishableKey() string { return "pk_test_123" }
func (g *fakeGateway) GetName() string        { return "fake" }

// ============================================================================
// FIXTURE
// ============================================================================

type fixture struct {
	bookings  *memoryBookingStore
	listings  *memoryListingStore
	sessions  *memorySessionStore
	gateway   *fakeGateway
	cache     *mapCache
	limiter   *fakeLimiter
	publisher *recordingPublisher

	identity     *IdentityService
	availability *AvailabilityService
	booking      *BookingService
	checkout     *CheckoutService
}

func testListing() *models.Listing {
	return &models.Listing{
		ID:       7,
		Title:    "Cliffside cabin",
		Price:    100,
		Location: "Ella",
		Image:    "https://img.example/7.jpg",
	}
}

func newFixture() *fixture {
	logger := quietLogger()
	f := &fixture{
		bookings:  newMemoryBookingStore(),
		listings:  newMemoryListingStore(testListing(), &models.Listing{ID: 8, Title: "Beach house", Price: 200}),
		sessions:  newMemorySessionStore(),
		gateway:   newFakeGateway(),
		cache:     newMapCache(),
		limiter:   &fakeLimiter{},
		publisher: &recordingPublisher{},
	}

	bookingCfg := config.BookingConfig{CleaningFee: 50, ServiceFee: 80, AllowDirect: true}
	quoter := NewStayQuoter(f.listings, bookingCfg)
	notifier := NewNotificationService(nil, "dev", logger)

	f.identity = NewIdentityService(testJWT(), f.bookings, logger)
	f.availability = NewAvailabilityService(f.bookings, f.listings, f.cache, logger)
	f.booking = NewBookingService(f.bookings, f.listings, f.identity, f.availability, quoter,
		f.limiter, nil, notifier, f.publisher, bookingCfg, logger)
	f.checkout = NewCheckoutService(f.gateway, f.bookings, f.sessions, f.availability, quoter,
		nil, notifier, f.publisher, config.PaymentConfig{ClientURL: "http://localhost:5173/", Currency: "usd"}, logger)
	return f
}
