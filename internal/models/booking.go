package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// BookingStatus represents the status of a booking.
// The only transition is confirmed -> cancelled.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking represents a stay reservation on a listing
type Booking struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	BookingReference  *string       `json:"booking_reference,omitempty" db:"booking_reference"`
	UserID            *uuid.UUID    `json:"user_id,omitempty" db:"user_id"`
	GuestName         *string       `json:"guest_name,omitempty" db:"guest_name"`
	GuestPhone        *string       `json:"guest_phone,omitempty" db:"guest_phone"`
	GuestEmail        *string       `json:"guest_email,omitempty" db:"guest_email"`
	ListingID         int64         `json:"listing_id" db:"listing_id"`
	CheckIn           time.Time     `json:"check_in" db:"check_in"`
	CheckOut          time.Time     `json:"check_out" db:"check_out"`
	TotalPrice        float64       `json:"total_price" db:"total_price"`
	Status            BookingStatus `json:"status" db:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentReference  *string       `json:"payment_reference,omitempty" db:"payment_reference"`
	CheckoutSessionID *string       `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	CancelledAt       *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`

	Listing *ListingSummary `json:"listing,omitempty" db:"-"`
}

// Stay returns the booked window
func (b *Booking) Stay() DateRange {
	return DateRange{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

// IsGuestBooking reports whether the booking is owned by a guest rather than a user
func (b *Booking) IsGuestBooking() bool {
	return b.UserID == nil
}

// IsOwnedBy reports whether the booking belongs to the given user
func (b *Booking) IsOwnedBy(userID uuid.UUID) bool {
	return b.UserID != nil && *b.UserID == userID
}

// Reference returns the booking reference or an empty string
func (b *Booking) Reference() string {
	if b.BookingReference == nil {
		return ""
	}
	return *b.BookingReference
}

// BookingOwner identifies who a booking belongs to: exactly one of a
// registered user or a guest (name and phone).
type BookingOwner struct {
	UserID     *uuid.UUID
	GuestName  string
	GuestPhone string
	GuestEmail string
}

// UserOwner builds an owner for a registered user
func UserOwner(userID uuid.UUID) BookingOwner {
	return BookingOwner{UserID: &userID}
}

// GuestOwner builds an owner for an anonymous guest
func GuestOwner(name, phone, email string) BookingOwner {
	return BookingOwner{
		GuestName:  strings.TrimSpace(name),
		GuestPhone: strings.TrimSpace(phone),
		GuestEmail: strings.TrimSpace(email),
	}
}

// Validate enforces the ownership rule
func (o BookingOwner) Validate() error {
	hasGuest := o.GuestName != "" || o.GuestPhone != "" || o.GuestEmail != ""
	if o.UserID != nil {
		if hasGuest {
			return fmt.Errorf("%w: a booking cannot have both a user and guest details", ErrValidation)
		}
		return nil
	}
	if o.GuestName == "" || o.GuestPhone == "" {
		return fmt.Errorf("%w: please provide guest details or log in", ErrValidation)
	}
	return nil
}

// BookingDraft is everything the ledger needs to record a new booking
type BookingDraft struct {
	ListingID         int64
	Owner             BookingOwner
	Stay              DateRange
	TotalPrice        float64
	PaymentStatus     PaymentStatus
	PaymentReference  *string
	CheckoutSessionID *string
}

// Validate checks the draft before it reaches storage
func (d *BookingDraft) Validate() error {
	if d.ListingID <= 0 {
		return fmt.Errorf("%w: listing_id is required", ErrValidation)
	}
	if err := d.Owner.Validate(); err != nil {
		return err
	}
	if !d.Stay.CheckIn.Before(d.Stay.CheckOut) {
		return fmt.Errorf("%w: check_in must be before check_out", ErrValidation)
	}
	if d.TotalPrice <= 0 {
		return fmt.Errorf("%w: total_price must be positive", ErrValidation)
	}
	switch d.PaymentStatus {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
	default:
		return fmt.Errorf("%w: unknown payment status %q", ErrValidation, d.PaymentStatus)
	}
	if d.PaymentReference != nil && *d.PaymentReference == "" {
		return fmt.Errorf("%w: payment reference cannot be empty", ErrValidation)
	}
	return nil
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// StayRequest holds the fields shared by direct bookings and checkout sessions
type StayRequest struct {
	ListingID  int64    `json:"listing_id" binding:"required,min=1"`
	CheckIn    string   `json:"check_in" binding:"required"`
	CheckOut   string   `json:"check_out" binding:"required"`
	TotalPrice *float64 `json:"total_price,omitempty" binding:"omitempty,gt=0"`
	GuestName  string   `json:"guest_name,omitempty" binding:"omitempty,max=100"`
	GuestPhone string   `json:"guest_phone,omitempty" binding:"omitempty,phone"`
	GuestEmail string   `json:"guest_email,omitempty" binding:"omitempty,email,max=254"`
}

// CreateBookingRequest represents the request to create a booking without payment
type CreateBookingRequest struct {
	StayRequest
}

// TrackBookingRequest looks up a guest booking by reference and phone
type TrackBookingRequest struct {
	BookingReference string `json:"booking_reference" binding:"required,max=16"`
	GuestPhone       string `json:"guest_phone" binding:"required,max=32"`
}

// GuestCancelRequest cancels a guest booking by reference and phone
type GuestCancelRequest struct {
	BookingReference string `json:"booking_reference" binding:"required,max=16"`
	GuestPhone       string `json:"guest_phone" binding:"required,max=32"`
}

// NormalizeReference canonicalizes a user-typed booking reference
func NormalizeReference(reference string) string {
	return strings.ToUpper(strings.TrimSpace(reference))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
