package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/staylet/rental-booking-backend/internal/models"
)

const checkoutSessionColumns = `
	id, gateway_session_id, listing_id, user_id, guest_phone, check_in, check_out,
	total_price, status, booking_id, payment_reference, expires_at, created_at, updated_at`

// CheckoutSessionRepository tracks payment attempts. Rows never affect availability.
type CheckoutSessionRepository struct {
	db *sqlx.DB
}

// NewCheckoutSessionRepository creates a new CheckoutSessionRepository
func NewCheckoutSessionRepository(db *sqlx.DB) *CheckoutSessionRepository {
	return &CheckoutSessionRepository{db: db}
}

// Create records a newly opened gateway session
func (r *CheckoutSessionRepository) Create(session *models.CheckoutSession) error {
	session.ID = uuid.New()
	session.Status = models.CheckoutSessionOpen
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt

	query := `
		INSERT INTO checkout_sessions (
			id, gateway_session_id, listing_id, user_id, guest_phone,
			check_in, check_out, total_price, status, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(query,
		session.ID, session.GatewaySessionID, session.ListingID, session.UserID, session.GuestPhone,
		session.CheckIn, session.CheckOut, session.TotalPrice, session.Status, session.ExpiresAt,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record checkout session: %w", err)
	}
	return nil
}

// GetByGatewaySessionID retrieves the tracking row for a gateway session
func (r *CheckoutSessionRepository) GetByGatewaySessionID(gatewaySessionID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	query := `SELECT` + checkoutSessionColumns + ` FROM checkout_sessions WHERE gateway_session_id = $1`
	err := r.db.Get(&session, query, gatewaySessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	return &session, nil
}

// MarkCompleted links the session to the booking it produced
func (r *CheckoutSessionRepository) MarkCompleted(gatewaySessionID string, bookingID uuid.UUID, paymentReference string) error {
	query := `
		UPDATE checkout_sessions
		SET status = 'completed', booking_id = $2, payment_reference = $3, updated_at = NOW()
		WHERE gateway_session_id = $1 AND status IN ('open', 'expired')`

	if _, err := r.db.Exec(query, gatewaySessionID, bookingID, paymentReference); err != nil {
		return fmt.Errorf("failed to complete checkout session: %w", err)
	}
	return nil
}

// MarkRefunded records that the payment was returned because the dates were taken
func (r *CheckoutSessionRepository) MarkRefunded(gatewaySessionID, paymentReference string) error {
	query := `
		UPDATE checkout_sessions
		SET status = 'refunded', payment_reference = $2, updated_at = NOW()
		WHERE gateway_session_id = $1`

	if _, err := r.db.Exec(query, gatewaySessionID, paymentReference); err != nil {
		return fmt.Errorf("failed to mark checkout session refunded: %w", err)
	}
	return nil
}

// ExpireOpenSessions marks up to limit open sessions past their expiry as expired
func (r *CheckoutSessionRepository) ExpireOpenSessions(limit int) (int64, error) {
	query := `
		UPDATE checkout_sessions
		SET status = 'expired', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM checkout_sessions
			WHERE status = 'open' AND expires_at < NOW()
			ORDER BY expires_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)`

	result, err := r.db.Exec(query, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to expire checkout sessions: %w", err)
	}
	return result.RowsAffected()
}
