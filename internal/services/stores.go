package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/staylet/rental-booking-backend/internal/models"
)

// BookingStore is the booking ledger. Get methods return nil, nil when no row matches.
type BookingStore interface {
	Create(draft *models.BookingDraft) (*models.Booking, error)
	GetByID(id uuid.UUID) (*models.Booking, error)
	GetByReference(reference, guestPhone string) (*models.Booking, error)
	GetByPaymentReference(paymentReference string) (*models.Booking, error)
	ListByUser(userID uuid.UUID) ([]*models.Booking, error)
	HasConfirmedOverlap(listingID int64, stay models.DateRange) (bool, error)
	ListUnavailableRanges(listingID int64, since time.Time) ([]models.DateRange, error)
	TransitionToCancelled(id uuid.UUID) (*models.Booking, error)
}

// ListingStore reads listings
type ListingStore interface {
	GetByID(id int64) (*models.Listing, error)
	List() ([]*models.Listing, error)
	GetByIDs(ids []int64) ([]*models.Listing, error)
}

// CheckoutSessionStore tracks hosted checkout attempts
type CheckoutSessionStore interface {
	Create(session *models.CheckoutSession) error
	GetByGatewaySessionID(gatewaySessionID string) (*models.CheckoutSession, error)
	MarkCompleted(gatewaySessionID string, bookingID uuid.UUID, paymentReference string) error
	MarkRefunded(gatewaySessionID, paymentReference string) error
	ExpireOpenSessions(limit int) (int64, error)
}

// GuestLookupLimiter throttles guest lookups; *RateLimitService implements it
type GuestLookupLimiter interface {
	CheckGuestLookup(reference, ip string) error
	RecordFailedLookup(reference, ip string) error
}
