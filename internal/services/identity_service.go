package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/pkg/jwt"
	"github.com/staylet/rental-booking-backend/pkg/validator"
)

// IdentityService resolves who is acting: a registered user via bearer
// token, or a guest via booking reference plus phone
type IdentityService struct {
	jwtService     *jwt.Service
	bookings       BookingStore
	phoneValidator *validator.PhoneValidator
	logger         *logrus.Logger
}

// NewIdentityService creates a new identity service
func NewIdentityService(jwtService *jwt.Service, bookings BookingStore, logger *logrus.Logger) *IdentityService {
	return &IdentityService{
		jwtService:     jwtService,
		bookings:       bookings,
		phoneValidator: validator.NewPhoneValidator(),
		logger:         logger,
	}
}

// VerifyUser returns the user id carried by a valid access token, or nil.
// The credential may be the raw token or an "Authorization: Bearer" value.
func (s *IdentityService) VerifyUser(credential string) *uuid.UUID {
	token := strings.TrimSpace(credential)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return nil
	}

	claims, err := s.jwtService.ValidateAccessToken(token)
	if err != nil {
		s.logger.WithError(err).Debug("Ignoring unverifiable credential")
		return nil
	}

	userID := claims.UserID
	return &userID
}

// VerifyGuest returns the booking matching both reference and phone.
// Any mismatch is ErrNotFound; the caller cannot tell which half was wrong.
func (s *IdentityService) VerifyGuest(reference, phone string) (*models.Booking, error) {
	reference = models.NormalizeReference(reference)
	phone = s.phoneValidator.Canonical(phone)
	if reference == "" || phone == "" {
		return nil, fmt.Errorf("%w: booking not found", models.ErrNotFound)
	}

	booking, err := s.bookings.GetByReference(reference, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking not found", models.ErrNotFound)
	}

	return booking, nil
}
