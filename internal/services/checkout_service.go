package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/config"
	"github.com/staylet/rental-booking-backend/internal/events"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/pkg/payment"
)

const (
	minCheckoutSessionTTL = 30 * time.Minute
	// The gateway measures the minimum TTL against its own clock at request time
	checkoutExpiryMargin = time.Minute
)

// CheckoutService runs the two-phase paid booking flow: open a hosted
// checkout session, then reconcile the paid session into the ledger.
// Nothing is written to the ledger until the gateway reports the session paid.
type CheckoutService struct {
	gateway      payment.Gateway
	bookings     BookingStore
	sessions     CheckoutSessionStore
	availability *AvailabilityService
	quoter       *StayQuoter
	audit        *AuditService
	notifier     *NotificationService
	publisher    events.Publisher
	config       config.PaymentConfig
	logger       *logrus.Logger
	now          func() time.Time
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	gateway payment.Gateway,
	bookings BookingStore,
	sessions CheckoutSessionStore,
	availability *AvailabilityService,
	quoter *StayQuoter,
	audit *AuditService,
	notifier *NotificationService,
	publisher events.Publisher,
	cfg config.PaymentConfig,
	logger *logrus.Logger,
) *CheckoutService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.SessionTTL < minCheckoutSessionTTL {
		cfg.SessionTTL = minCheckoutSessionTTL
	}
	return &CheckoutService{
		gateway:      gateway,
		bookings:     bookings,
		sessions:     sessions,
		availability: availability,
		quoter:       quoter,
		audit:        audit,
		notifier:     notifier,
		publisher:    publisher,
		config:       cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// PublishableKey returns the client-side gateway key
func (s *CheckoutService) PublishableKey() string {
	return s.gateway.PublishableKey()
}

// ============================================================================
// PHASE 1: OPEN
// ============================================================================

// OpenCheckout validates and prices a stay, then creates a hosted checkout
// session carrying the booking intent in its metadata
func (s *CheckoutService) OpenCheckout(ctx context.Context, req *models.CreateCheckoutSessionRequest, userID *uuid.UUID) (*models.CheckoutSessionResponse, error) {
	prepared, err := s.quoter.Prepare(&req.StayRequest, userID)
	if err != nil {
		return nil, err
	}
	listing := prepared.Listing
	stay := prepared.Stay

	// Advisory only; the ledger re-checks under lock when the payment is reconciled
	available, err := s.availability.IsAvailable(listing.ID, stay.CheckIn, stay.CheckOut)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, models.ErrConflict
	}

	intent := &models.CheckoutIntent{
		ListingID:  listing.ID,
		UserID:     prepared.Owner.UserID,
		CheckIn:    stay.CheckIn,
		CheckOut:   stay.CheckOut,
		TotalPrice: prepared.Quote.Total,
		GuestName:  prepared.Owner.GuestName,
		GuestPhone: prepared.Owner.GuestPhone,
		GuestEmail: prepared.Owner.GuestEmail,
	}

	expiresAt := s.now().UTC().Add(s.config.SessionTTL + checkoutExpiryMargin)
	clientURL := strings.TrimRight(s.config.ClientURL, "/")

	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		ProductName:   listing.Title,
		ProductImage:  listing.Image,
		Description:   fmt.Sprintf("%d night(s), %s to %s", prepared.Quote.Nights, stay.CheckIn.Format("2006-01-02"), stay.CheckOut.Format("2006-01-02")),
		AmountCents:   payment.ToMinorUnits(prepared.Quote.Total),
		Currency:      s.config.Currency,
		SuccessURL:    clientURL + "/my-bookings?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     fmt.Sprintf("%s/listings/%d?canceled=true", clientURL, listing.ID),
		ExpiresAt:     expiresAt,
		CustomerEmail: prepared.Owner.GuestEmail,
		Metadata:      intent.Metadata(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("listing_id", listing.ID).Error("Failed to create checkout session")
		if errors.Is(err, payment.ErrInvalidRequest) {
			return nil, fmt.Errorf("%w: payment provider rejected the checkout: %v", models.ErrValidation, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = expiresAt
	}

	tracked := &models.CheckoutSession{
		GatewaySessionID: session.ID,
		ListingID:        listing.ID,
		UserID:           intent.UserID,
		CheckIn:          stay.CheckIn,
		CheckOut:         stay.CheckOut,
		TotalPrice:       intent.TotalPrice,
		ExpiresAt:        session.ExpiresAt,
	}
	if intent.GuestPhone != "" {
		phone := intent.GuestPhone
		tracked.GuestPhone = &phone
	}
	if err := s.sessions.Create(tracked); err != nil {
		// The gateway session carries everything reconcile needs
		s.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to record checkout session")
	}

	if err := s.audit.LogCheckoutOpened(ctx, session.ID, intent); err != nil {
		s.logger.WithError(err).Warn("Failed to write audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"listing_id": listing.ID,
		"total":      intent.TotalPrice,
		"guest":      intent.UserID == nil,
	}).Info("Checkout session opened")

	return &models.CheckoutSessionResponse{
		SessionID: session.ID,
		URL:       session.URL,
		ExpiresAt: session.ExpiresAt,
		Quote:     prepared.Quote,
	}, nil
}

// ============================================================================
// PHASE 2: RECONCILE
// ============================================================================

// Reconcile records the booking for a paid session. It is safe to call any
// number of times for the same session: the payment reference is unique in
// the ledger, so at most one booking exists per payment.
func (s *CheckoutService) Reconcile(ctx context.Context, sessionID string) (*models.ReconcileResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", models.ErrValidation)
	}
	log := s.logger.WithField("session_id", sessionID)

	result, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: checkout session %s", models.ErrNotFound, sessionID)
		}
		log.WithError(err).Warn("Failed to retrieve checkout session")
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}

	if !result.Paid {
		return nil, fmt.Errorf("%w: payment status is %q", models.ErrPaymentIncomplete, result.PaymentStatus)
	}
	if result.PaymentReference == "" {
		return nil, fmt.Errorf("%w: session has no payment", models.ErrPaymentIncomplete)
	}
	paymentRef := result.PaymentReference
	log = log.WithField("payment_reference", paymentRef)

	intent, err := models.ParseCheckoutIntent(result.Metadata)
	if err != nil {
		log.WithError(err).Error("Paid session carries unusable booking metadata")
		return nil, err
	}
	if expected := payment.ToMinorUnits(intent.TotalPrice); result.AmountTotal != 0 && result.AmountTotal != expected {
		log.WithFields(logrus.Fields{
			"expected_cents": expected,
			"paid_cents":     result.AmountTotal,
		}).Warn("Paid amount differs from booking total")
	}

	existing, err := s.bookings.GetByPaymentReference(paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment: %w", err)
	}
	if existing != nil {
		return &models.ReconcileResult{Booking: existing, AlreadyRecorded: true}, nil
	}

	// The provider's refund state holds even when the tracking row is missing
	if result.Refunded {
		log.Warn("Refunded payment presented for reconcile")
		return nil, fmt.Errorf("%w: payment for this session was refunded", models.ErrConflict)
	}

	tracked, err := s.sessions.GetByGatewaySessionID(sessionID)
	if err != nil {
		log.WithError(err).Warn("Failed to load checkout session record")
	}
	if tracked != nil && tracked.Status == models.CheckoutSessionRefunded {
		return nil, fmt.Errorf("%w: payment for this session was refunded", models.ErrConflict)
	}

	booking, err := s.bookings.Create(&models.BookingDraft{
		ListingID:         intent.ListingID,
		Owner:             intent.Owner(),
		Stay:              intent.Stay(),
		TotalPrice:        intent.TotalPrice,
		PaymentStatus:     models.PaymentStatusPaid,
		PaymentReference:  &paymentRef,
		CheckoutSessionID: &sessionID,
	})
	switch {
	case errors.Is(err, models.ErrDuplicatePayment):
		// A concurrent reconcile of the same payment won the insert
		existing, getErr := s.bookings.GetByPaymentReference(paymentRef)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load recorded payment: %w", getErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("payment %s reported as recorded but not found", paymentRef)
		}
		return &models.ReconcileResult{Booking: existing, AlreadyRecorded: true}, nil
	case errors.Is(err, models.ErrConflict):
		return nil, s.refundConflict(ctx, sessionID, paymentRef, intent)
	case err != nil:
		return nil, err
	}

	s.afterRecorded(ctx, booking, sessionID)
	return &models.ReconcileResult{Booking: booking}, nil
}

func (s *CheckoutService) afterRecorded(ctx context.Context, booking *models.Booking, sessionID string) {
	log := s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"booking_id": booking.ID,
		"reference":  booking.Reference(),
		"listing_id": booking.ListingID,
	})
	log.Info("Paid booking recorded")

	if err := s.sessions.MarkCompleted(sessionID, booking.ID, *booking.PaymentReference); err != nil {
		log.WithError(err).Warn("Failed to mark checkout session completed")
	}
	s.availability.Invalidate(ctx, booking.ListingID)
	publishEvent(ctx, s.publisher, s.logger, bookingEvent(events.BookingConfirmed, booking, sessionID))
	_ = s.notifier.SendBookingReference(ctx, booking)
	if err := s.audit.LogBookingCreated(ctx, booking, "checkout"); err != nil {
		log.WithError(err).Warn("Failed to write audit entry")
	}
}

// refundConflict returns a payment whose dates were taken between open and
// reconcile. The result is always an error: ErrConflict once refunded, or
// ErrUpstreamUnavailable so the caller retries and the refund is attempted again.
func (s *CheckoutService) refundConflict(ctx context.Context, sessionID, paymentRef string, intent *models.CheckoutIntent) error {
	log := s.logger.WithFields(logrus.Fields{
		"session_id":        sessionID,
		"payment_reference": paymentRef,
		"listing_id":        intent.ListingID,
	})
	log.Warn("Dates were booked before payment could be recorded, refunding")

	if err := s.gateway.Refund(ctx, paymentRef); err != nil {
		log.WithError(err).Error("Refund failed for conflicting payment")
		return fmt.Errorf("%w: refund failed: %v", models.ErrUpstreamUnavailable, err)
	}

	if err := s.sessions.MarkRefunded(sessionID, paymentRef); err != nil {
		log.WithError(err).Warn("Failed to mark checkout session refunded")
	}

	publishEvent(ctx, s.publisher, s.logger, events.Event{
		Type:          events.CheckoutRefunded,
		Key:           sessionID,
		CorrelationID: sessionID,
		Payload: events.RefundPayload{
			SessionID:        sessionID,
			PaymentReference: paymentRef,
			ListingID:        intent.ListingID,
			CheckIn:          intent.CheckIn,
			CheckOut:         intent.CheckOut,
			TotalPrice:       intent.TotalPrice,
		},
	})
	if err := s.audit.LogCheckoutRefunded(ctx, sessionID, paymentRef, intent); err != nil {
		log.WithError(err).Warn("Failed to write audit entry")
	}

	return fmt.Errorf("%w: These dates were booked while you paid. Your payment has been refunded.", models.ErrConflict)
}

// ============================================================================
// WEBHOOK
// ============================================================================

// HandleWebhook verifies a gateway callback and reconciles completed sessions.
// A nil return acknowledges the delivery; an error asks the gateway to retry.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"session_id": event.SessionID,
	})

	switch event.Type {
	case payment.EventCheckoutSessionCompleted, payment.EventCheckoutAsyncPaymentSucceeded:
	default:
		log.Debug("Ignoring webhook event")
		return nil
	}

	result, err := s.Reconcile(ctx, event.SessionID)
	switch {
	case err == nil:
		log.WithField("already_recorded", result.AlreadyRecorded).Info("Webhook reconciled checkout session")
		return nil
	case errors.Is(err, models.ErrPaymentIncomplete):
		// Delayed payment methods complete the session before funds arrive;
		// the async_payment_succeeded event follows.
		log.Info("Checkout completed without payment yet")
		return nil
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrNotFound):
		// Retrying cannot change the outcome
		log.WithError(err).Warn("Webhook reconcile rejected")
		return nil
	default:
		log.WithError(err).Error("Webhook reconcile failed")
		return err
	}
}
