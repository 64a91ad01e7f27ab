package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/staylet/rental-booking-backend/internal/database"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/internal/utils"
)

// Audit actions
const (
	AuditBookingCreated        = "booking_created"
	AuditBookingCancelled      = "booking_cancelled"
	AuditGuestBookingCancelled = "guest_booking_cancelled"
	AuditGuestLookupFailed     = "guest_lookup_failed"
	AuditCheckoutOpened        = "checkout_opened"
	AuditCheckoutRefunded      = "checkout_refunded"
	AuditRateLimitViolation    = "rate_limit_violation"
)

// AuditService handles audit logging for booking events.
// A nil *AuditService is valid and records nothing.
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{
		db: db,
	}
}

// AuditEvent represents an event to be logged
type AuditEvent struct {
	UserID     *uuid.UUID             // nil for guest and anonymous events
	Action     string                 // e.g. "booking_created", "guest_lookup_failed"
	EntityType string                 // "booking", "checkout_session", "rate_limit"
	EntityID   string                 // booking id or gateway session id, may be empty
	IPAddress  string
	UserAgent  string
	Details    map[string]interface{} // stored as JSONB
}

// LogBookingCreated logs a booking recorded in the ledger
func (s *AuditService) LogBookingCreated(ctx context.Context, booking *models.Booking, source string) error {
	meta := RequestMetaFrom(ctx)

	details := map[string]interface{}{
		"booking_reference": booking.Reference(),
		"listing_id":        booking.ListingID,
		"check_in":          booking.CheckIn,
		"check_out":         booking.CheckOut,
		"total_price":       booking.TotalPrice,
		"payment_status":    booking.PaymentStatus,
		"guest_booking":     booking.IsGuestBooking(),
		"source":            source, // "checkout" or "direct"
		"device_info":       utils.ParseUserAgent(meta.UserAgent),
	}

	return s.logEvent(AuditEvent{
		UserID:     booking.UserID,
		Action:     AuditBookingCreated,
		EntityType: "booking",
		EntityID:   booking.ID.String(),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// LogBookingCancelled logs a cancellation by the owning user or by a guest
func (s *AuditService) LogBookingCancelled(ctx context.Context, booking *models.Booking, requester *uuid.UUID) error {
	meta := RequestMetaFrom(ctx)

	action := AuditBookingCancelled
	if requester == nil {
		action = AuditGuestBookingCancelled
	}

	details := map[string]interface{}{
		"booking_reference": booking.Reference(),
		"listing_id":        booking.ListingID,
		"device_info":       utils.ParseUserAgent(meta.UserAgent),
	}

	return s.logEvent(AuditEvent{
		UserID:     requester,
		Action:     action,
		EntityType: "booking",
		EntityID:   booking.ID.String(),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// LogGuestLookupFailed logs a reference/phone pair that matched nothing
func (s *AuditService) LogGuestLookupFailed(ctx context.Context, reference string) error {
	meta := RequestMetaFrom(ctx)

	return s.logEvent(AuditEvent{
		Action:     AuditGuestLookupFailed,
		EntityType: "booking",
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"booking_reference": reference,
			"device_info":       utils.ParseUserAgent(meta.UserAgent),
		},
	})
}

// LogCheckoutOpened logs a hosted checkout session handed to the client
func (s *AuditService) LogCheckoutOpened(ctx context.Context, sessionID string, intent *models.CheckoutIntent) error {
	meta := RequestMetaFrom(ctx)

	return s.logEvent(AuditEvent{
		UserID:     intent.UserID,
		Action:     AuditCheckoutOpened,
		EntityType: "checkout_session",
		EntityID:   sessionID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"listing_id":  intent.ListingID,
			"check_in":    intent.CheckIn,
			"check_out":   intent.CheckOut,
			"total_price": intent.TotalPrice,
			"device_info": utils.ParseUserAgent(meta.UserAgent),
		},
	})
}

// LogCheckoutRefunded logs a payment returned because its dates were taken
func (s *AuditService) LogCheckoutRefunded(ctx context.Context, sessionID, paymentReference string, intent *models.CheckoutIntent) error {
	meta := RequestMetaFrom(ctx)

	return s.logEvent(AuditEvent{
		UserID:     intent.UserID,
		Action:     AuditCheckoutRefunded,
		EntityType: "checkout_session",
		EntityID:   sessionID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: map[string]interface{}{
			"payment_reference": paymentReference,
			"listing_id":        intent.ListingID,
			"check_in":          intent.CheckIn,
			"check_out":         intent.CheckOut,
			"total_price":       intent.TotalPrice,
		},
	})
}

// LogRateLimitViolation logs a rate limit violation event
func (s *AuditService) LogRateLimitViolation(ctx context.Context, reference, limitType string, retryAfter time.Time) error {
	meta := RequestMetaFrom(ctx)

	details := map[string]interface{}{
		"booking_reference": reference,
		"limit_type":        limitType, // "reference" or "ip"
		"retry_after":       retryAfter,
		"device_info":       utils.ParseUserAgent(meta.UserAgent),
	}

	return s.logEvent(AuditEvent{
		Action:     AuditRateLimitViolation,
		EntityType: "rate_limit",
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// logEvent is the internal method that writes to the audit_logs table
func (s *AuditService) logEvent(event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err = s.db.Exec(
		query,
		event.UserID,
		event.Action,
		event.EntityType,
		nullIfBlank(event.EntityID),
		nullIfBlank(event.IPAddress),
		nullIfBlank(event.UserAgent),
		string(details),
	)

	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}

	cutoffTime := time.Now().Add(-olderThan)

	query := `
		DELETE FROM audit_logs
		WHERE created_at < $1
	`

	result, err := s.db.Exec(query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func nullIfBlank(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
