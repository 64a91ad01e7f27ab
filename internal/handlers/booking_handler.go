package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/middleware"
	"github.com/staylet/rental-booking-backend/internal/models"
)

// BookingOperations is the booking surface the handler drives; *services.BookingService implements it
type BookingOperations interface {
	CreateDirect(ctx context.Context, req *models.CreateBookingRequest, userID *uuid.UUID) (*models.Booking, error)
	ListMyBookings(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error)
	Track(ctx context.Context, reference, phone string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, requester uuid.UUID) (*models.Booking, error)
	GuestCancel(ctx context.Context, reference, phone string) (*models.Booking, error)
}

// AvailabilityReader lists the blocked stays of a listing
type AvailabilityReader interface {
	ListUnavailableRanges(ctx context.Context, listingID int64) ([]models.DateRange, error)
}

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookings     BookingOperations
	availability AvailabilityReader
	logger       *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingOperations, availability AvailabilityReader, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings:     bookings,
		availability: availability,
		logger:       logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking handles POST /api/v1/bookings
// Creates a confirmed booking with payment pending, for a user or a guest.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.CreateDirect(requestContext(c), &req, middleware.UserIDFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ============================================================================
// QUERIES
// ============================================================================

// GetUnavailableDates handles GET /api/v1/bookings/unavailable-dates/:listingId
func (h *BookingHandler) GetUnavailableDates(c *gin.Context) {
	listingID, err := strconv.ParseInt(c.Param("listingId"), 10, 64)
	if err != nil || listingID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid listing ID",
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	ranges, err := h.availability.ListUnavailableRanges(c.Request.Context(), listingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ranges)
}

// GetMyBookings handles GET /api/v1/bookings/my-bookings
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
			Code:    "MISSING_USER_CONTEXT",
		})
		return
	}

	bookings, err := h.bookings.ListMyBookings(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}

	c.JSON(http.StatusOK, bookings)
}

// TrackBooking handles POST /api/v1/bookings/track
// Guests find their booking with the reference and the phone they booked with.
func (h *BookingHandler) TrackBooking(c *gin.Context) {
	var req models.TrackBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.Track(requestContext(c), req.BookingReference, req.GuestPhone)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// CANCELLATION
// ============================================================================

// CancelBooking handles PUT /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
			Code:    "MISSING_USER_CONTEXT",
		})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid booking ID",
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	booking, err := h.bookings.Cancel(requestContext(c), bookingID, userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GuestCancelBooking handles POST /api/v1/bookings/guest-cancel
func (h *BookingHandler) GuestCancelBooking(c *gin.Context) {
	var req models.GuestCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.GuestCancel(requestContext(c), req.BookingReference, req.GuestPhone)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled successfully",
		"booking": booking,
	})
}
