package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/internal/utils"
)

// maxReferenceAttempts bounds how many reference codes one insert may draw
const maxReferenceAttempts = 10

// Constraint names declared in migrations.go
const (
	constraintBookingReference = "bookings_booking_reference_key"
	constraintPaymentReference = "bookings_payment_reference_key"
	constraintNoOverlap        = "bookings_no_overlap"
)

const bookingColumns = `
	id, booking_reference, user_id, guest_name, guest_phone, guest_email,
	listing_id, check_in, check_out, total_price, status, payment_status,
	payment_reference, checkout_session_id, cancelled_at, created_at, updated_at`

// errReferenceTaken signals a booking_reference collision; Create retries on it.
var errReferenceTaken = errors.New("booking reference already taken")

// BookingRepository is the booking ledger. It is the only writer of the
// bookings table.
type BookingRepository struct {
	db           *sqlx.DB
	newReference func() (string, error)
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{
		db:           db,
		newReference: utils.GenerateReferenceCode,
	}
}

// ============================================================================
// LEDGER WRITES
// ============================================================================

// Create records a confirmed booking. In one transaction it serializes on the
// listing, rejects a payment reference that is already recorded, re-checks
// availability, then inserts with a freshly drawn reference code.
//
// Errors: models.ErrValidation, models.ErrDuplicatePayment, models.ErrConflict,
// models.ErrCodeSpaceExhausted.
func (r *BookingRepository) Create(draft *models.BookingDraft) (*models.Booking, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Held until commit/rollback; concurrent inserts on the same listing queue here.
	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock($1)`, draft.ListingID); err != nil {
		return nil, fmt.Errorf("failed to lock listing %d: %w", draft.ListingID, err)
	}

	if draft.PaymentReference != nil {
		var recorded bool
		err := tx.Get(&recorded, `SELECT EXISTS (SELECT 1 FROM bookings WHERE payment_reference = $1)`, *draft.PaymentReference)
		if err != nil {
			return nil, fmt.Errorf("failed to check payment reference: %w", err)
		}
		if recorded {
			return nil, models.ErrDuplicatePayment
		}
	}

	overlap, err := hasConfirmedOverlap(tx, draft.ListingID, draft.Stay)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, models.ErrConflict
	}

	query := `
		INSERT INTO bookings (
			id, booking_reference, user_id, guest_name, guest_phone, guest_email,
			listing_id, check_in, check_out, total_price, status, payment_status,
			payment_reference, checkout_session_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW()
		)
		RETURNING` + bookingColumns

	for attempt := 1; attempt <= maxReferenceAttempts; attempt++ {
		code, err := r.newReference()
		if err != nil {
			return nil, err
		}

		if _, err := tx.Exec(`SAVEPOINT booking_reference`); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		var booking models.Booking
		err = tx.QueryRowx(query,
			uuid.New(), code, draft.Owner.UserID,
			nullIfEmpty(draft.Owner.GuestName), nullIfEmpty(draft.Owner.GuestPhone), nullIfEmpty(draft.Owner.GuestEmail),
			draft.ListingID, draft.Stay.CheckIn, draft.Stay.CheckOut, draft.TotalPrice,
			models.BookingStatusConfirmed, draft.PaymentStatus,
			draft.PaymentReference, draft.CheckoutSessionID,
		).StructScan(&booking)
		if err == nil {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit booking: %w", classifyBookingError(err))
			}
			return &booking, nil
		}

		err = classifyBookingError(err)
		if !errors.Is(err, errReferenceTaken) {
			return nil, err
		}
		if _, err := tx.Exec(`ROLLBACK TO SAVEPOINT booking_reference`); err != nil {
			return nil, fmt.Errorf("failed to roll back savepoint: %w", err)
		}
	}

	return nil, models.ErrCodeSpaceExhausted
}

// TransitionToCancelled moves a confirmed booking to cancelled. The update is
// conditional on the current status, so a second call gets
// models.ErrAlreadyCancelled instead of silently succeeding.
func (r *BookingRepository) TransitionToCancelled(id uuid.UUID) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'
		RETURNING` + bookingColumns

	var booking models.Booking
	err := r.db.QueryRowx(query, id).StructScan(&booking)
	if err == nil {
		return &booking, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	var exists bool
	if err := r.db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id); err != nil {
		return nil, fmt.Errorf("failed to check booking: %w", err)
	}
	if !exists {
		return nil, models.ErrNotFound
	}
	return nil, models.ErrAlreadyCancelled
}

// ============================================================================
// LEDGER READS
// ============================================================================

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(id uuid.UUID) (*models.Booking, error) {
	return r.getOne(`SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByReference retrieves the booking matching both reference and guest phone.
// Both values are compared exactly; callers canonicalize them first.
func (r *BookingRepository) GetByReference(reference, guestPhone string) (*models.Booking, error) {
	return r.getOne(`SELECT`+bookingColumns+` FROM bookings WHERE booking_reference = $1 AND guest_phone = $2`, reference, guestPhone)
}

// GetByPaymentReference retrieves the booking recorded for a payment
func (r *BookingRepository) GetByPaymentReference(paymentReference string) (*models.Booking, error) {
	return r.getOne(`SELECT`+bookingColumns+` FROM bookings WHERE payment_reference = $1`, paymentReference)
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(userID uuid.UUID) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`
	if err := r.db.Select(&bookings, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// HasConfirmedOverlap reports whether a confirmed booking on the listing
// intersects the half-open stay window
func (r *BookingRepository) HasConfirmedOverlap(listingID int64, stay models.DateRange) (bool, error) {
	return hasConfirmedOverlap(r.db, listingID, stay)
}

// ListUnavailableRanges returns confirmed stays on a listing that end on or after since
func (r *BookingRepository) ListUnavailableRanges(listingID int64, since time.Time) ([]models.DateRange, error) {
	query := `
		SELECT check_in, check_out
		FROM bookings
		WHERE listing_id = $1 AND status = 'confirmed' AND check_out >= $2
		ORDER BY check_in`

	ranges := []models.DateRange{}
	if err := r.db.Select(&ranges, query, listingID, since); err != nil {
		return nil, fmt.Errorf("failed to list unavailable ranges: %w", err)
	}
	return ranges, nil
}

func (r *BookingRepository) getOne(query string, args ...interface{}) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.Get(&booking, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func hasConfirmedOverlap(q sqlx.Queryer, listingID int64, stay models.DateRange) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE listing_id = $1
			  AND status = 'confirmed'
			  AND check_in < $3
			  AND check_out > $2
		)`

	var overlap bool
	if err := sqlx.Get(q, &overlap, query, listingID, stay.CheckIn, stay.CheckOut); err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}
	return overlap, nil
}

// classifyBookingError maps PostgreSQL constraint violations to ledger errors
func classifyBookingError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case "23505": // unique_violation
		switch pqErr.Constraint {
		case constraintBookingReference:
			return errReferenceTaken
		case constraintPaymentReference:
			return models.ErrDuplicatePayment
		}
	case "23P01": // exclusion_violation
		if pqErr.Constraint == "" || pqErr.Constraint == constraintNoOverlap {
			return models.ErrConflict
		}
	case "23514": // check_violation
		return fmt.Errorf("%w: %s", models.ErrValidation, pqErr.Constraint)
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
