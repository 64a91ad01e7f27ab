package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	errName string
	code    string
	message string // fixed message; empty means use the error's detail
}

var errorMappings = []errorMapping{
	{models.ErrValidation, http.StatusBadRequest, "validation_error", "VALIDATION_ERROR", ""},
	{models.ErrNotFound, http.StatusNotFound, "not_found", "NOT_FOUND", ""},
	{models.ErrConflict, http.StatusConflict, "dates_unavailable", "DATES_UNAVAILABLE", ""},
	{models.ErrNotAuthorized, http.StatusUnauthorized, "not_authorized", "NOT_AUTHORIZED", "Not authorized"},
	{models.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "payment_gateway_unavailable", "PAYMENT_GATEWAY_UNAVAILABLE", "Payment service is temporarily unavailable. Please try again."},
	{models.ErrAlreadyCancelled, http.StatusBadRequest, "already_cancelled", "ALREADY_CANCELLED", "Booking is already cancelled."},
	{models.ErrPaymentIncomplete, http.StatusBadRequest, "payment_incomplete", "PAYMENT_INCOMPLETE", "Payment not successful"},
	{models.ErrCodeSpaceExhausted, http.StatusInternalServerError, "reference_unavailable", "REFERENCE_UNAVAILABLE", "Could not allocate a booking reference. Please try again."},
}

// respondError writes the JSON error for err and logs anything unexpected
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var rateLimitErr *services.RateLimitError
	if errors.As(err, &rateLimitErr) {
		retryAfter := int(time.Until(rateLimitErr.RetryAfter).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error:   "rate_limited",
			Message: rateLimitErr.Message,
			Code:    "RATE_LIMITED",
		})
		return
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = errorDetail(err, m.target)
		}
		if m.status >= http.StatusInternalServerError {
			logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("Request failed")
		}
		c.JSON(m.status, ErrorResponse{
			Error:   m.errName,
			Message: message,
			Code:    m.code,
		})
		return
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}).Error("Unhandled error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Server error",
		Code:    "INTERNAL_ERROR",
	})
}

// errorDetail drops the sentinel's own text from a wrapped error message, so
// "invalid check_in: validation failed: date is required" reads
// "invalid check_in: date is required"
func errorDetail(err, sentinel error) string {
	msg := err.Error()
	marker := sentinel.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[:i] + msg[i+len(marker):]
	}
	if msg == sentinel.Error() && msg != "" {
		return strings.ToUpper(msg[:1]) + msg[1:]
	}
	return msg
}

// respondBindError reports a request body that failed to bind or validate
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: err.Error(),
		Code:    "VALIDATION_ERROR",
	})
}
