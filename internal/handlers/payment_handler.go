package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/middleware"
	"github.com/staylet/rental-booking-backend/internal/models"
)

// maxWebhookBody caps the webhook payload read into memory
const maxWebhookBody = 64 << 10

// CheckoutOperations is the payment surface the handler drives; *services.CheckoutService implements it
type CheckoutOperations interface {
	PublishableKey() string
	OpenCheckout(ctx context.Context, req *models.CreateCheckoutSessionRequest, userID *uuid.UUID) (*models.CheckoutSessionResponse, error)
	Reconcile(ctx context.Context, sessionID string) (*models.ReconcileResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// PaymentHandler handles hosted checkout requests and gateway callbacks
type PaymentHandler struct {
	checkout CheckoutOperations
	identity middleware.UserVerifier
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(checkout CheckoutOperations, identity middleware.UserVerifier, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkout,
		identity: identity,
		logger:   logger,
	}
}

// GetConfig handles GET /api/v1/payments/config
func (h *PaymentHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"publishable_key": h.checkout.PublishableKey(),
	})
}

// CreateCheckoutSession handles POST /api/v1/payments/create-checkout-session
// The user comes from the Authorization header or, failing that, the user_token field.
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	var req models.CreateCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	userID := middleware.UserIDFromContext(c)
	if userID == nil && req.UserToken != "" {
		userID = h.identity.VerifyUser(req.UserToken)
	}

	session, err := h.checkout.OpenCheckout(requestContext(c), &req, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// VerifySession handles POST /api/v1/payments/verify-session
// Called by the success page; records the booking if the webhook has not already.
func (h *PaymentHandler) VerifySession(c *gin.Context) {
	var req models.VerifySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.checkout.Reconcile(requestContext(c), req.SessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Payment verified and booking created"
	if result.AlreadyRecorded {
		message = "Booking already confirmed"
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           message,
		"booking_id":        result.Booking.ID,
		"booking_reference": result.Booking.Reference(),
		"booking":           result.Booking,
		"already_recorded":  result.AlreadyRecorded,
	})
}

// Webhook handles POST /api/v1/payments/webhook
// The raw body is needed for signature verification.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "read_error",
			Message: "Failed to read request body",
		})
		return
	}

	if err := h.checkout.HandleWebhook(requestContext(c), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
