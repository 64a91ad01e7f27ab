package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSMS struct {
	phones   []string
	messages []string
	err      error
}

func (r *recordingSMS) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.phones = append(r.phones, phone)
	r.messages = append(r.messages, message)
	return int64(len(r.phones)), nil
}

func (r *recordingSMS) GetName() string { return "recording" }

func guestBooking() *models.Booking {
	ref, phone := "AB12CD", "0771234567"
	return &models.Booking{
		ID:               uuid.New(),
		BookingReference: &ref,
		GuestPhone:       &phone,
		CheckIn:          time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:         time.Date(2030, 5, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestBookingReferenceMessage(t *testing.T) {
	msg := BookingReferenceMessage(guestBooking())
	assert.Contains(t, msg, "AB12CD")
	assert.Contains(t, msg, "1 May 2030")
	assert.Contains(t, msg, "3 May 2030")
}

func TestSendBookingReference(t *testing.T) {
	t.Run("production sends to the guest phone", func(t *testing.T) {
		gateway := &recordingSMS{}
		svc := NewNotificationService(gateway, "production", quietLogger())

		require.NoError(t, svc.SendBookingReference(context.Background(), guestBooking()))
		assert.Equal(t, []string{"0771234567"}, gateway.phones)
	})

	t.Run("dev mode only logs", func(t *testing.T) {
		gateway := &recordingSMS{}
		svc := NewNotificationService(gateway, "dev", quietLogger())

		require.NoError(t, svc.SendBookingReference(context.Background(), guestBooking()))
		assert.Empty(t, gateway.phones)
	})

	t.Run("user bookings are skipped", func(t *testing.T) {
		gateway := &recordingSMS{}
		svc := NewNotificationService(gateway, "production", quietLogger())

		b := guestBooking()
		userID := uuid.New()
		b.UserID = &userID
		b.GuestPhone = nil

		require.NoError(t, svc.SendBookingReference(context.Background(), b))
		assert.Empty(t, gateway.phones)
	})

	t.Run("gateway failure is reported", func(t *testing.T) {
		svc := NewNotificationService(&recordingSMS{err: errors.New("quota exceeded")}, "production", quietLogger())

		assert.Error(t, svc.SendBookingReference(context.Background(), guestBooking()))
	})

	t.Run("nil service is a no-op", func(t *testing.T) {
		var svc *NotificationService
		assert.NoError(t, svc.SendBookingReference(context.Background(), guestBooking()))
	})
}
