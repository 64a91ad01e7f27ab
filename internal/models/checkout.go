package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// checkoutIntentVersion is bumped whenever the metadata layout changes
const checkoutIntentVersion = "1"

// maxMetadataValueLength is the payment gateway's limit for one metadata value
const maxMetadataValueLength = 500

// Metadata keys carried on a checkout session
const (
	metaVersion    = "v"
	metaListingID  = "listing_id"
	metaUserID     = "user_id"
	metaCheckIn    = "check_in"
	metaCheckOut   = "check_out"
	metaTotalPrice = "total_price"
	metaGuestName  = "guest_name"
	metaGuestPhone = "guest_phone"
	metaGuestEmail = "guest_email"
)

// CheckoutIntent is the booking a checkout session will become once paid.
// It travels inside the gateway session metadata, which is the only source
// of truth when the session is reconciled.
type CheckoutIntent struct {
	ListingID  int64
	UserID     *uuid.UUID
	CheckIn    time.Time
	CheckOut   time.Time
	TotalPrice float64
	GuestName  string
	GuestPhone string
	GuestEmail string
}

// Owner returns who the booking will belong to
func (i *CheckoutIntent) Owner() BookingOwner {
	owner := GuestOwner(i.GuestName, i.GuestPhone, i.GuestEmail)
	owner.UserID = i.UserID
	return owner
}

// Stay returns the requested window
func (i *CheckoutIntent) Stay() DateRange {
	return DateRange{CheckIn: i.CheckIn, CheckOut: i.CheckOut}
}

// Metadata encodes the intent for the payment gateway
func (i *CheckoutIntent) Metadata() map[string]string {
	md := map[string]string{
		metaVersion:    checkoutIntentVersion,
		metaListingID:  strconv.FormatInt(i.ListingID, 10),
		metaCheckIn:    i.CheckIn.UTC().Format(time.RFC3339),
		metaCheckOut:   i.CheckOut.UTC().Format(time.RFC3339),
		metaTotalPrice: strconv.FormatFloat(i.TotalPrice, 'f', 2, 64),
	}
	if i.UserID != nil {
		md[metaUserID] = i.UserID.String()
		return md
	}
	md[metaGuestName] = i.GuestName
	md[metaGuestPhone] = i.GuestPhone
	if i.GuestEmail != "" {
		md[metaGuestEmail] = i.GuestEmail
	}
	return md
}

// ParseCheckoutIntent decodes gateway metadata. Missing, malformed or
// inconsistent values return an error wrapping ErrValidation.
func ParseCheckoutIntent(md map[string]string) (*CheckoutIntent, error) {
	if len(md) == 0 {
		return nil, fmt.Errorf("%w: checkout metadata is empty", ErrValidation)
	}
	for k, v := range md {
		if len(v) > maxMetadataValueLength {
			return nil, fmt.Errorf("%w: metadata %q exceeds %d characters", ErrValidation, k, maxMetadataValueLength)
		}
	}
	if v, ok := md[metaVersion]; ok && v != checkoutIntentVersion {
		return nil, fmt.Errorf("%w: unsupported checkout metadata version %q", ErrValidation, v)
	}

	intent := &CheckoutIntent{}

	listingID, err := strconv.ParseInt(strings.TrimSpace(md[metaListingID]), 10, 64)
	if err != nil || listingID <= 0 {
		return nil, fmt.Errorf("%w: invalid listing_id in checkout metadata", ErrValidation)
	}
	intent.ListingID = listingID

	if raw := strings.TrimSpace(md[metaUserID]); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid user_id in checkout metadata", ErrValidation)
		}
		intent.UserID = &userID
	}

	stay, err := ParseDateRange(md[metaCheckIn], md[metaCheckOut])
	if err != nil {
		return nil, err
	}
	intent.CheckIn = stay.CheckIn
	intent.CheckOut = stay.CheckOut

	total, err := strconv.ParseFloat(strings.TrimSpace(md[metaTotalPrice]), 64)
	if err != nil || total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return nil, fmt.Errorf("%w: invalid total_price in checkout metadata", ErrValidation)
	}
	intent.TotalPrice = roundCents(total)

	intent.GuestName = strings.TrimSpace(md[metaGuestName])
	intent.GuestPhone = strings.TrimSpace(md[metaGuestPhone])
	intent.GuestEmail = strings.TrimSpace(md[metaGuestEmail])

	if err := intent.Owner().Validate(); err != nil {
		return nil, err
	}
	return intent, nil
}

// ============================================================================
// CHECKOUT SESSION TRACKING
// ============================================================================

// CheckoutSessionStatus tracks one payment attempt
type CheckoutSessionStatus string

const (
	CheckoutSessionOpen      CheckoutSessionStatus = "open"
	CheckoutSessionCompleted CheckoutSessionStatus = "completed"
	CheckoutSessionExpired   CheckoutSessionStatus = "expired"
	CheckoutSessionRefunded  CheckoutSessionStatus = "refunded"
)

// CheckoutSession is the local record of a gateway checkout session.
// It never blocks availability.
type CheckoutSession struct {
	ID               uuid.UUID             `json:"id" db:"id"`
	GatewaySessionID string                `json:"gateway_session_id" db:"gateway_session_id"`
	ListingID        int64                 `json:"listing_id" db:"listing_id"`
	UserID           *uuid.UUID            `json:"user_id,omitempty" db:"user_id"`
	GuestPhone       *string               `json:"guest_phone,omitempty" db:"guest_phone"`
	CheckIn          time.Time             `json:"check_in" db:"check_in"`
	CheckOut         time.Time             `json:"check_out" db:"check_out"`
	TotalPrice       float64               `json:"total_price" db:"total_price"`
	Status           CheckoutSessionStatus `json:"status" db:"status"`
	BookingID        *uuid.UUID            `json:"booking_id,omitempty" db:"booking_id"`
	PaymentReference *string               `json:"payment_reference,omitempty" db:"payment_reference"`
	ExpiresAt        time.Time             `json:"expires_at" db:"expires_at"`
	CreatedAt        time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at" db:"updated_at"`
}

// CreateCheckoutSessionRequest opens a hosted checkout for a stay.
// UserToken lets clients that cannot set headers on the redirect flow identify the user.
type CreateCheckoutSessionRequest struct {
	StayRequest
	UserToken string `json:"user_token,omitempty"`
}

// CheckoutSessionResponse is returned to the client, which redirects to URL
type CheckoutSessionResponse struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Quote     Quote     `json:"quote"`
}

// VerifySessionRequest asks the server to reconcile a completed checkout
type VerifySessionRequest struct {
	SessionID string `json:"session_id" binding:"required,max=255"`
}

// ReconcileResult is the outcome of reconciling a paid session
type ReconcileResult struct {
	Booking         *Booking `json:"booking"`
	AlreadyRecorded bool     `json:"already_recorded"`
}
