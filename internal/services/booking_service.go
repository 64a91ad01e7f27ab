package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/config"
	"github.com/staylet/rental-booking-backend/internal/events"
	"github.com/staylet/rental-booking-backend/internal/models"
)

// BookingService owns the booking lifecycle after a booking exists:
// listing, tracking and cancelling. It also records direct (unpaid) bookings.
type BookingService struct {
	bookings     BookingStore
	listings     ListingStore
	identity     *IdentityService
	availability *AvailabilityService
	quoter       *StayQuoter
	limiter      GuestLookupLimiter
	audit        *AuditService
	notifier     *NotificationService
	publisher    events.Publisher
	allowDirect  bool
	logger       *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings BookingStore,
	listings ListingStore,
	identity *IdentityService,
	availability *AvailabilityService,
	quoter *StayQuoter,
	limiter GuestLookupLimiter,
	audit *AuditService,
	notifier *NotificationService,
	publisher events.Publisher,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &BookingService{
		bookings:     bookings,
		listings:     listings,
		identity:     identity,
		availability: availability,
		quoter:       quoter,
		limiter:      limiter,
		audit:        audit,
		notifier:     notifier,
		publisher:    publisher,
		allowDirect:  cfg.AllowDirect,
		logger:       logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateDirect records a confirmed booking with payment pending, without
// going through the payment gateway
func (s *BookingService) CreateDirect(ctx context.Context, req *models.CreateBookingRequest, userID *uuid.UUID) (*models.Booking, error) {
	if !s.allowDirect {
		return nil, fmt.Errorf("%w: direct booking is disabled", models.ErrNotAuthorized)
	}

	prepared, err := s.quoter.Prepare(&req.StayRequest, userID)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.Create(&models.BookingDraft{
		ListingID:     prepared.Listing.ID,
		Owner:         prepared.Owner,
		Stay:          prepared.Stay,
		TotalPrice:    prepared.Quote.Total,
		PaymentStatus: models.PaymentStatusPending,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference(),
		"listing_id": booking.ListingID,
		"guest":      booking.IsGuestBooking(),
	}).Info("Direct booking recorded")

	s.availability.Invalidate(ctx, booking.ListingID)
	s.publish(ctx, bookingEvent(events.BookingConfirmed, booking, ""))
	if err := s.audit.LogBookingCreated(ctx, booking, "direct"); err != nil {
		s.logger.WithError(err).Warn("Failed to write audit entry")
	}
	_ = s.notifier.SendBookingReference(ctx, booking)

	booking.Listing = prepared.Listing.Summary()
	return booking, nil
}

// ============================================================================
// READ
// ============================================================================

// ListMyBookings returns a user's bookings, newest first, with listing summaries
func (s *BookingService) ListMyBookings(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	bookings, err := s.bookings.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}

	if err := s.attachListings(bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// Track returns a guest booking by reference and phone
func (s *BookingService) Track(ctx context.Context, reference, phone string) (*models.Booking, error) {
	booking, err := s.verifyGuest(ctx, reference, phone)
	if err != nil {
		return nil, err
	}

	if err := s.attachListings([]*models.Booking{booking}); err != nil {
		return nil, err
	}
	return booking, nil
}

// ============================================================================
// CANCEL
// ============================================================================

// Cancel cancels a booking on behalf of its owning user
func (s *BookingService) Cancel(ctx context.Context, bookingID, requester uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %s", models.ErrNotFound, bookingID)
	}

	// Guest bookings have no user and can only be cancelled through GuestCancel
	if !booking.IsOwnedBy(requester) {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"requester":  requester,
		}).Warn("Cancel attempt on a booking owned by someone else")
		return nil, fmt.Errorf("%w: booking belongs to another account", models.ErrNotAuthorized)
	}

	cancelled, err := s.bookings.TransitionToCancelled(bookingID)
	if err != nil {
		return nil, err
	}

	s.afterCancel(ctx, cancelled, &requester)
	return cancelled, nil
}

// GuestCancel cancels a guest booking proven by reference and phone
func (s *BookingService) GuestCancel(ctx context.Context, reference, phone string) (*models.Booking, error) {
	booking, err := s.verifyGuest(ctx, reference, phone)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.bookings.TransitionToCancelled(booking.ID)
	if err != nil {
		return nil, err
	}

	s.afterCancel(ctx, cancelled, nil)
	return cancelled, nil
}

func (s *BookingService) afterCancel(ctx context.Context, booking *models.Booking, requester *uuid.UUID) {
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference(),
		"listing_id": booking.ListingID,
		"guest":      requester == nil,
	}).Info("Booking cancelled")

	s.availability.Invalidate(ctx, booking.ListingID)
	s.publish(ctx, bookingEvent(events.BookingCancelled, booking, ""))
	if err := s.audit.LogBookingCancelled(ctx, booking, requester); err != nil {
		s.logger.WithError(err).Warn("Failed to write audit entry")
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// verifyGuest wraps IdentityService.VerifyGuest with lookup throttling
func (s *BookingService) verifyGuest(ctx context.Context, reference, phone string) (*models.Booking, error) {
	meta := RequestMetaFrom(ctx)
	reference = models.NormalizeReference(reference)

	if s.limiter != nil {
		if err := s.limiter.CheckGuestLookup(reference, meta.IPAddress); err != nil {
			var rateLimitErr *RateLimitError
			if errors.As(err, &rateLimitErr) {
				if auditErr := s.audit.LogRateLimitViolation(ctx, reference, rateLimitErr.Type, rateLimitErr.RetryAfter); auditErr != nil {
					s.logger.WithError(auditErr).Warn("Failed to write audit entry")
				}
				return nil, err
			}
			// A failing limiter fails open
			s.logger.WithError(err).Warn("Guest lookup rate limit check failed")
		}
	}

	booking, err := s.identity.VerifyGuest(reference, phone)
	if err == nil {
		return booking, nil
	}

	if errors.Is(err, models.ErrNotFound) {
		if s.limiter != nil {
			if recErr := s.limiter.RecordFailedLookup(reference, meta.IPAddress); recErr != nil {
				s.logger.WithError(recErr).Warn("Failed to record guest lookup attempt")
			}
		}
		if auditErr := s.audit.LogGuestLookupFailed(ctx, reference); auditErr != nil {
			s.logger.WithError(auditErr).Warn("Failed to write audit entry")
		}
	}
	return nil, err
}

// attachListings loads every referenced listing in one query
func (s *BookingService) attachListings(bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	seen := make(map[int64]bool, len(bookings))
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		if !seen[b.ListingID] {
			seen[b.ListingID] = true
			ids = append(ids, b.ListingID)
		}
	}

	listings, err := s.listings.GetByIDs(ids)
	if err != nil {
		return fmt.Errorf("failed to load listings: %w", err)
	}

	byID := make(map[int64]*models.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	for _, b := range bookings {
		b.Listing = byID[b.ListingID].Summary()
	}
	return nil
}

func (s *BookingService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.publisher, s.logger, event)
}

func publishEvent(ctx context.Context, publisher events.Publisher, logger *logrus.Logger, event events.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"key":        event.Key,
		}).Warn("Failed to publish event")
	}
}

func bookingEvent(eventType string, b *models.Booking, correlationID string) events.Event {
	payload := events.BookingPayload{
		BookingID:        b.ID.String(),
		BookingReference: b.Reference(),
		ListingID:        b.ListingID,
		CheckIn:          b.CheckIn,
		CheckOut:         b.CheckOut,
		TotalPrice:       b.TotalPrice,
		Status:           string(b.Status),
		PaymentStatus:    string(b.PaymentStatus),
	}
	if b.UserID != nil {
		payload.UserID = b.UserID.String()
	}
	return events.Event{
		Type:          eventType,
		Key:           b.ID.String(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
}
