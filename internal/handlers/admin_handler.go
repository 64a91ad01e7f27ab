package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CronOperations exposes the scheduler to operators; *services.CronService implements it
type CronOperations interface {
	GetJobStatus() map[string]interface{}
	RunCheckoutExpirationNow() (int64, error)
}

// AdminHandler handles admin-related HTTP requests
type AdminHandler struct {
	cron   CronOperations
	logger *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cron CronOperations, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		cron:   cron,
		logger: logger,
	}
}

// GetCronStatus handles GET /api/v1/admin/cron/status
func (h *AdminHandler) GetCronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}

// ExpireCheckouts handles POST /api/v1/admin/cron/expire-checkouts
func (h *AdminHandler) ExpireCheckouts(c *gin.Context) {
	expired, err := h.cron.RunCheckoutExpirationNow()
	if err != nil {
		h.logger.WithError(err).Error("Manual checkout expiration failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "job_failed",
			Message: "Failed to expire checkout sessions",
			Code:    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout expiration completed",
		"expired": expired,
	})
}
