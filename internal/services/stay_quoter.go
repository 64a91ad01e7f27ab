package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/staylet/rental-booking-backend/internal/config"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/pkg/validator"
)

// PreparedStay is a validated, priced booking request
type PreparedStay struct {
	Listing *models.Listing
	Stay    models.DateRange
	Owner   models.BookingOwner
	Quote   models.Quote
}

// StayQuoter validates a stay request and prices it on the server
type StayQuoter struct {
	listings       ListingStore
	phoneValidator *validator.PhoneValidator
	cleaningFee    float64
	serviceFee     float64
}

// NewStayQuoter creates a quoter with the configured flat fees
func NewStayQuoter(listings ListingStore, cfg config.BookingConfig) *StayQuoter {
	return &StayQuoter{
		listings:       listings,
		phoneValidator: validator.NewPhoneValidator(),
		cleaningFee:    cfg.CleaningFee,
		serviceFee:     cfg.ServiceFee,
	}
}

// Prepare checks dates, then identity, then the listing, then the price
func (q *StayQuoter) Prepare(req *models.StayRequest, userID *uuid.UUID) (*PreparedStay, error) {
	stay, err := models.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	owner, err := q.resolveOwner(req, userID)
	if err != nil {
		return nil, err
	}

	listing, err := q.listings.GetByID(req.ListingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, fmt.Errorf("%w: listing %d", models.ErrNotFound, req.ListingID)
	}

	quote := models.QuoteStay(listing, stay, q.cleaningFee, q.serviceFee)
	if req.TotalPrice != nil && !quote.Matches(*req.TotalPrice) {
		return nil, fmt.Errorf("%w: total_price %.2f does not match the quoted total %.2f",
			models.ErrValidation, *req.TotalPrice, quote.Total)
	}

	return &PreparedStay{
		Listing: listing,
		Stay:    stay,
		Owner:   owner,
		Quote:   quote,
	}, nil
}

// resolveOwner prefers the authenticated user; guest fields are ignored then
func (q *StayQuoter) resolveOwner(req *models.StayRequest, userID *uuid.UUID) (models.BookingOwner, error) {
	if userID != nil {
		return models.UserOwner(*userID), nil
	}

	if strings.TrimSpace(req.GuestName) == "" || strings.TrimSpace(req.GuestPhone) == "" {
		return models.BookingOwner{}, fmt.Errorf("%w: Please provide guest details or log in.", models.ErrValidation)
	}

	phone, err := q.phoneValidator.Validate(req.GuestPhone)
	if err != nil {
		return models.BookingOwner{}, fmt.Errorf("%w: guest_phone: %v", models.ErrValidation, err)
	}

	owner := models.GuestOwner(req.GuestName, phone, req.GuestEmail)
	if err := owner.Validate(); err != nil {
		return models.BookingOwner{}, err
	}
	return owner, nil
}
