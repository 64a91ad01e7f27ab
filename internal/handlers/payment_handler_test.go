package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/staylet/rental-booking-backend/internal/middleware"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPaymentRouter(checkout *stubCheckout, verifier tokenVerifier) *gin.Engine {
	handler := NewPaymentHandler(checkout, verifier, quietLogger())
	router := gin.New()

	payments := router.Group("/api/v1/payments")
	payments.GET("/config", handler.GetConfig)
	payments.POST("/create-checkout-session", middleware.OptionalAuth(verifier), handler.CreateCheckoutSession)
	payments.POST("/verify-session", handler.VerifySession)
	payments.POST("/webhook", handler.Webhook)
	return router
}

func checkoutBody() map[string]interface{} {
	return map[string]interface{}{
		"listing_id":  7,
		"check_in":    "2030-05-01",
		"check_out":   "2030-05-03",
		"total_price": 350,
		"guest_name":  "Ana",
		"guest_phone": "0771234567",
	}
}

func TestGetConfig(t *testing.T) {
	router := setupPaymentRouter(&stubCheckout{}, tokenVerifier{})

	w := doJSON(router, http.MethodGet, "/api/v1/payments/config", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publishable_key":"pk_test_123"}`, w.Body.String())
}

func TestCreateCheckoutSession(t *testing.T) {
	userID := uuid.New()
	verifier := tokenVerifier{"Bearer header-token": userID, "body-token": userID}

	var gotUser *uuid.UUID
	checkout := &stubCheckout{
		openFn: func(req *models.CreateCheckoutSessionRequest, u *uuid.UUID) (*models.CheckoutSessionResponse, error) {
			gotUser = u
			return &models.CheckoutSessionResponse{
				SessionID: "cs_test_1",
				URL:       "https://checkout.example/cs_test_1",
				ExpiresAt: time.Now().Add(31 * time.Minute),
			}, nil
		},
	}
	router := setupPaymentRouter(checkout, verifier)

	t.Run("guest", func(t *testing.T) {
		gotUser = nil
		w := doJSON(router, http.MethodPost, "/api/v1/payments/create-checkout-session", checkoutBody())

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, gotUser)
		assert.Contains(t, w.Body.String(), "https://checkout.example/cs_test_1")
	})

	t.Run("user from header", func(t *testing.T) {
		gotUser = nil
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/create-checkout-session",
			strings.NewReader(mustJSON(t, checkoutBody())))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer header-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, gotUser)
		assert.Equal(t, userID, *gotUser)
	})

	t.Run("user from body token", func(t *testing.T) {
		gotUser = nil
		body := checkoutBody()
		body["user_token"] = "body-token"

		w := doJSON(router, http.MethodPost, "/api/v1/payments/create-checkout-session", body)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, gotUser)
		assert.Equal(t, userID, *gotUser)
	})

	t.Run("unverifiable body token is a guest", func(t *testing.T) {
		gotUser = nil
		body := checkoutBody()
		body["user_token"] = "garbage"

		w := doJSON(router, http.MethodPost, "/api/v1/payments/create-checkout-session", body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, gotUser)
	})
}

func TestCreateCheckoutSession_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"dates taken", models.ErrConflict, http.StatusConflict, "DATES_UNAVAILABLE"},
		{"price mismatch", fmt.Errorf("%w: total price does not match", models.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"gateway down", fmt.Errorf("create session: %w", models.ErrUpstreamUnavailable), http.StatusServiceUnavailable, "PAYMENT_GATEWAY_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkout := &stubCheckout{
				openFn: func(*models.CreateCheckoutSessionRequest, *uuid.UUID) (*models.CheckoutSessionResponse, error) {
					return nil, tt.err
				},
			}
			router := setupPaymentRouter(checkout, tokenVerifier{})

			w := doJSON(router, http.MethodPost, "/api/v1/payments/create-checkout-session", checkoutBody())

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestVerifySession(t *testing.T) {
	booking := sampleBooking()
	booking.PaymentStatus = models.PaymentStatusPaid

	t.Run("newly recorded", func(t *testing.T) {
		checkout := &stubCheckout{
			reconcileFn: func(sessionID string) (*models.ReconcileResult, error) {
				assert.Equal(t, "cs_test_1", sessionID)
				return &models.ReconcileResult{Booking: booking}, nil
			},
		}
		router := setupPaymentRouter(checkout, tokenVerifier{})

		w := doJSON(router, http.MethodPost, "/api/v1/payments/verify-session", map[string]string{"session_id": "cs_test_1"})

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Payment verified and booking created", resp["message"])
		assert.Equal(t, booking.ID.String(), resp["booking_id"])
		assert.Equal(t, "AB12CD34", resp["booking_reference"])
		assert.Equal(t, false, resp["already_recorded"])
	})

	t.Run("already recorded", func(t *testing.T) {
		checkout := &stubCheckout{
			reconcileFn: func(string) (*models.ReconcileResult, error) {
				return &models.ReconcileResult{Booking: booking, AlreadyRecorded: true}, nil
			},
		}
		router := setupPaymentRouter(checkout, tokenVerifier{})

		w := doJSON(router, http.MethodPost, "/api/v1/payments/verify-session", map[string]string{"session_id": "cs_test_1"})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Booking already confirmed")
		assert.Contains(t, w.Body.String(), `"already_recorded":true`)
	})

	t.Run("unpaid", func(t *testing.T) {
		checkout := &stubCheckout{
			reconcileFn: func(string) (*models.ReconcileResult, error) {
				return nil, models.ErrPaymentIncomplete
			},
		}
		router := setupPaymentRouter(checkout, tokenVerifier{})

		w := doJSON(router, http.MethodPost, "/api/v1/payments/verify-session", map[string]string{"session_id": "cs_test_1"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "PAYMENT_INCOMPLETE", resp.Code)
		assert.Equal(t, "Payment not successful", resp.Message)
	})

	t.Run("missing session id", func(t *testing.T) {
		router := setupPaymentRouter(&stubCheckout{}, tokenVerifier{})

		w := doJSON(router, http.MethodPost, "/api/v1/payments/verify-session", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhook(t *testing.T) {
	var gotPayload []byte
	var gotSignature string
	checkout := &stubCheckout{
		webhookFn: func(payload []byte, signature string) error {
			gotPayload, gotSignature = payload, signature
			switch signature {
			case "t=1,v1=good":
				return nil
			case "t=1,v1=retry":
				return errors.New("database unavailable")
			default:
				return fmt.Errorf("%w: bad signature", models.ErrValidation)
			}
		},
	}
	router := setupPaymentRouter(checkout, tokenVerifier{})

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set("Stripe-Signature", signature)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send("t=1,v1=good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"id":"evt_1"}`, string(gotPayload))
	assert.Equal(t, "t=1,v1=good", gotSignature)

	w = send("forged")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send("t=1,v1=retry")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
