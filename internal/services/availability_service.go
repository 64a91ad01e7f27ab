package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/cache"
	"github.com/staylet/rental-booking-backend/internal/models"
)

// AvailabilityService answers whether a listing is free for a stay.
// Only confirmed bookings block dates.
type AvailabilityService struct {
	bookings BookingStore
	listings ListingStore
	cache    cache.AvailabilityCache
	logger   *logrus.Logger
	now      func() time.Time

	// generations counts invalidations per listing (int64 -> *atomic.Uint64)
	generations sync.Map
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(bookings BookingStore, listings ListingStore, rangeCache cache.AvailabilityCache, logger *logrus.Logger) *AvailabilityService {
	if rangeCache == nil {
		rangeCache = cache.NopAvailabilityCache{}
	}
	return &AvailabilityService{
		bookings: bookings,
		listings: listings,
		cache:    rangeCache,
		logger:   logger,
		now:      time.Now,
	}
}

// Overlaps reports whether two half-open stays share a night
func Overlaps(a, b models.DateRange) bool {
	return a.Overlaps(b)
}

// IsAvailable returns false iff a confirmed booking overlaps [checkIn, checkOut).
// It is advisory; the ledger re-checks under lock when recording.
func (s *AvailabilityService) IsAvailable(listingID int64, checkIn, checkOut time.Time) (bool, error) {
	stay, err := models.NewDateRange(checkIn, checkOut)
	if err != nil {
		return false, err
	}

	overlap, err := s.bookings.HasConfirmedOverlap(listingID, stay)
	if err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}
	return !overlap, nil
}

// ListUnavailableRanges returns the confirmed stays that have not yet ended
func (s *AvailabilityService) ListUnavailableRanges(ctx context.Context, listingID int64) ([]models.DateRange, error) {
	ranges, hit, err := s.cache.Get(ctx, listingID)
	if err != nil {
		s.logger.WithError(err).WithField("listing_id", listingID).Warn("Availability cache read failed, using database")
	}
	if hit {
		return ranges, nil
	}

	listing, err := s.listings.GetByID(listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, fmt.Errorf("%w: listing %d", models.ErrNotFound, listingID)
	}

	gen := s.generation(listingID).Load()
	ranges, err = s.bookings.ListUnavailableRanges(listingID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list unavailable dates: %w", err)
	}
	if ranges == nil {
		ranges = []models.DateRange{}
	}

	// A write that invalidated during the read makes these ranges stale.
	// Writers on other instances are only bounded by the cache TTL.
	if s.generation(listingID).Load() != gen {
		return ranges, nil
	}
	if err := s.cache.Set(ctx, listingID, ranges); err != nil {
		s.logger.WithError(err).WithField("listing_id", listingID).Warn("Failed to cache unavailable dates")
	}

	return ranges, nil
}

// Invalidate drops the cached ranges of a listing after the ledger changes
func (s *AvailabilityService) Invalidate(ctx context.Context, listingID int64) {
	s.generation(listingID).Add(1)
	if err := s.cache.Invalidate(ctx, listingID); err != nil {
		s.logger.WithError(err).WithField("listing_id", listingID).Warn("Failed to invalidate availability cache")
	}
}

func (s *AvailabilityService) generation(listingID int64) *atomic.Uint64 {
	v, _ := s.generations.LoadOrStore(listingID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}
