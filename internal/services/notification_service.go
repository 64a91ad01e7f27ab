package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/pkg/sms"
)

// NotificationService texts guests their booking reference, the only key
// they have to their booking
type NotificationService struct {
	gateway sms.SMSGateway
	mode    string // "production" sends, anything else only logs
	logger  *logrus.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(gateway sms.SMSGateway, mode string, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		gateway: gateway,
		mode:    mode,
		logger:  logger,
	}
}

// BookingReferenceMessage is the text sent after a guest booking is recorded
func BookingReferenceMessage(booking *models.Booking) string {
	return fmt.Sprintf(
		"Your Staylet booking reference is %s for %s to %s. Keep it with this phone number to view or cancel your stay.",
		booking.Reference(),
		booking.CheckIn.Format("2 Jan 2006"),
		booking.CheckOut.Format("2 Jan 2006"),
	)
}

// SendBookingReference notifies a guest. Bookings owned by users are skipped.
func (s *NotificationService) SendBookingReference(ctx context.Context, booking *models.Booking) error {
	if s == nil || !booking.IsGuestBooking() || booking.GuestPhone == nil {
		return nil
	}

	phone := *booking.GuestPhone
	message := BookingReferenceMessage(booking)
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference(),
	})

	if s.mode != "production" || s.gateway == nil {
		log.WithField("message", message).Info("SMS (dev mode, not sent)")
		return nil
	}

	transactionID, err := s.gateway.SendMessage(ctx, phone, message)
	if err != nil {
		log.WithError(err).WithField("gateway", s.gateway.GetName()).Warn("Failed to send booking reference SMS")
		return fmt.Errorf("failed to send booking reference: %w", err)
	}

	log.WithField("transaction_id", transactionID).Info("Booking reference SMS sent")
	return nil
}
