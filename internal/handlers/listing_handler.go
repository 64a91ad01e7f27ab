package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/staylet/rental-booking-backend/internal/models"
	"github.com/staylet/rental-booking-backend/internal/services"
)

// ListingHandler serves the read-only listing catalogue
type ListingHandler struct {
	listings services.ListingStore
	logger   *logrus.Logger
}

// NewListingHandler creates a new listing handler
func NewListingHandler(listings services.ListingStore, logger *logrus.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		logger:   logger,
	}
}

// ListListings handles GET /api/v1/listings
func (h *ListingHandler) ListListings(c *gin.Context) {
	listings, err := h.listings.List()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if listings == nil {
		listings = []*models.Listing{}
	}

	c.JSON(http.StatusOK, listings)
}

// GetListing handles GET /api/v1/listings/:id
func (h *ListingHandler) GetListing(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid listing ID",
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	listing, err := h.listings.GetByID(id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if listing == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Listing not found",
			Code:    "NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, listing)
}
