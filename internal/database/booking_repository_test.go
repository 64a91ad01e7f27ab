package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingRowColumns = []string{
	"id", "booking_reference", "user_id", "guest_name", "guest_phone", "guest_email",
	"listing_id", "check_in", "check_out", "total_price", "status", "payment_status",
	"payment_reference", "checkout_session_id", "cancelled_at", "created_at", "updated_at",
}

func setupBookingRepositoryTest(t *testing.T) (*BookingRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewBookingRepository(sqlx.NewDb(db, "sqlmock"))
	return repo, mock, func() { db.Close() }
}

func guestDraft(paymentRef *string) *models.BookingDraft {
	return &models.BookingDraft{
		ListingID:        7,
		Owner:            models.GuestOwner("Ada Lovelace", "0771234567", ""),
		Stay:             models.DateRange{CheckIn: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), CheckOut: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
		TotalPrice:       630,
		PaymentStatus:    models.PaymentStatusPaid,
		PaymentReference: paymentRef,
	}
}

func bookingRow(id uuid.UUID, reference, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(bookingRowColumns).AddRow(
		id.String(), reference, nil, "Ada Lovelace", "0771234567", nil,
		int64(7), time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		630.0, status, "paid", "pi_123", nil, nil, now, now,
	)
}

func sequence(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func expectLedgerPreamble(mock sqlmock.Sqlmock, withPaymentCheck bool) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if withPaymentCheck {
		mock.ExpectQuery("FROM bookings WHERE payment_reference").
			WithArgs("pi_123").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	}
	mock.ExpectQuery("status = 'confirmed'(.+)check_in < ").
		WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
}

func TestBookingRepository_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()
		repo.newReference = sequence("K7Q2ZP")

		paymentRef := "pi_123"
		id := uuid.New()

		expectLedgerPreamble(mock, true)
		mock.ExpectExec("SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO bookings").
			WithArgs(sqlmock.AnyArg(), "K7Q2ZP", nil, "Ada Lovelace", "0771234567", nil,
				int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), 630.0,
				"confirmed", "paid", "pi_123", nil).
			WillReturnRows(bookingRow(id, "K7Q2ZP", "confirmed"))
		mock.ExpectCommit()

		booking, err := repo.Create(guestDraft(&paymentRef))
		require.NoError(t, err)
		assert.Equal(t, id, booking.ID)
		assert.Equal(t, "K7Q2ZP", booking.Reference())
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.True(t, booking.IsGuestBooking())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Reference Collision Retries", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()
		repo.newReference = sequence("AAAAAA", "BBBBBB")

		expectLedgerPreamble(mock, false)
		mock.ExpectExec("SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_booking_reference_key"})
		mock.ExpectExec("ROLLBACK TO SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO bookings").
			WithArgs(sqlmock.AnyArg(), "BBBBBB", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(bookingRow(uuid.New(), "BBBBBB", "confirmed"))
		mock.ExpectCommit()

		booking, err := repo.Create(guestDraft(nil))
		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", booking.Reference())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Code Space Exhausted", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()
		repo.newReference = sequence("AAAAAA")

		expectLedgerPreamble(mock, false)
		for i := 0; i < maxReferenceAttempts; i++ {
			mock.ExpectExec("SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("INSERT INTO bookings").
				WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_booking_reference_key"})
			mock.ExpectExec("ROLLBACK TO SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
		}
		mock.ExpectRollback()

		booking, err := repo.Create(guestDraft(nil))
		assert.Nil(t, booking)
		assert.ErrorIs(t, err, models.ErrCodeSpaceExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Overlap Detected By Recheck", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("status = 'confirmed'(.+)check_in < ").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		booking, err := repo.Create(guestDraft(nil))
		assert.Nil(t, booking)
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Exclusion Constraint Maps To Conflict", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()
		repo.newReference = sequence("K7Q2ZP")

		expectLedgerPreamble(mock, false)
		mock.ExpectExec("SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23P01", Constraint: "bookings_no_overlap"})
		mock.ExpectRollback()

		_, err := repo.Create(guestDraft(nil))
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Payment Already Recorded", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()

		paymentRef := "pi_123"
		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM bookings WHERE payment_reference").
			WithArgs("pi_123").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := repo.Create(guestDraft(&paymentRef))
		assert.ErrorIs(t, err, models.ErrDuplicatePayment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Payment Unique Index Race", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()
		repo.newReference = sequence("K7Q2ZP")

		paymentRef := "pi_123"
		expectLedgerPreamble(mock, true)
		mock.ExpectExec("SAVEPOINT booking_reference").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_payment_reference_key"})
		mock.ExpectRollback()

		_, err := repo.Create(guestDraft(&paymentRef))
		assert.ErrorIs(t, err, models.ErrDuplicatePayment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Invalid Draft Never Reaches Storage", func(t *testing.T) {
		repo, mock, cleanup := setupBookingRepositoryTest(t)
		defer cleanup()

		userID := uuid.New()
		draft := guestDraft(nil)
		draft.Owner.UserID = &userID

		_, err := repo.Create(draft)
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_TransitionToCancelled(t *testing.T) {
	repo, mock, cleanup := setupBookingRepositoryTest(t)
	defer cleanup()

	id := uuid.New()

	mock.ExpectQuery("UPDATE bookings(.+)WHERE id = (.+) AND status = 'confirmed'").
		WithArgs(id).
		WillReturnRows(bookingRow(id, "K7Q2ZP", "cancelled"))

	booking, err := repo.TransitionToCancelled(id)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)

	// Second call: the conditional update matches nothing
	mock.ExpectQuery("UPDATE bookings").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))
	mock.ExpectQuery("SELECT EXISTS (.+) FROM bookings WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	booking, err = repo.TransitionToCancelled(id)
	assert.Nil(t, booking)
	assert.ErrorIs(t, err, models.ErrAlreadyCancelled)

	mock.ExpectQuery("UPDATE bookings").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))
	mock.ExpectQuery("SELECT EXISTS (.+) FROM bookings WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = repo.TransitionToCancelled(id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_GetByReference(t *testing.T) {
	repo, mock, cleanup := setupBookingRepositoryTest(t)
	defer cleanup()

	id := uuid.New()

	t.Run("Match", func(t *testing.T) {
		mock.ExpectQuery("FROM bookings WHERE booking_reference = (.+) AND guest_phone").
			WithArgs("K7Q2ZP", "0771234567").
			WillReturnRows(bookingRow(id, "K7Q2ZP", "confirmed"))

		booking, err := repo.GetByReference("K7Q2ZP", "0771234567")
		require.NoError(t, err)
		assert.Equal(t, id, booking.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Wrong Phone", func(t *testing.T) {
		mock.ExpectQuery("FROM bookings WHERE booking_reference = (.+) AND guest_phone").
			WithArgs("K7Q2ZP", "0779999999").
			WillReturnRows(sqlmock.NewRows(bookingRowColumns))

		booking, err := repo.GetByReference("K7Q2ZP", "0779999999")
		assert.NoError(t, err)
		assert.Nil(t, booking)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery("FROM bookings WHERE booking_reference").
			WillReturnError(fmt.Errorf("connection reset"))

		_, err := repo.GetByReference("K7Q2ZP", "0771234567")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_ListUnavailableRanges(t *testing.T) {
	repo, mock, cleanup := setupBookingRepositoryTest(t)
	defer cleanup()

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	in := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	out := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT check_in, check_out(.+)FROM bookings").
		WithArgs(int64(7), since).
		WillReturnRows(sqlmock.NewRows([]string{"check_in", "check_out"}).AddRow(in, out))

	ranges, err := repo.ListUnavailableRanges(7, since)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.True(t, ranges[0].CheckIn.Equal(in))
	assert.True(t, ranges[0].CheckOut.Equal(out))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyBookingError(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, plain, classifyBookingError(plain))
	assert.ErrorIs(t, classifyBookingError(&pq.Error{Code: "23514", Constraint: "bookings_owner_check"}), models.ErrValidation)
	assert.ErrorIs(t, classifyBookingError(&pq.Error{Code: "23505", Constraint: "bookings_booking_reference_key"}), errReferenceTaken)
}
