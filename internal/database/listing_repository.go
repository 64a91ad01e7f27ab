package database

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/staylet/rental-booking-backend/internal/models"
)

const listingColumns = `
	id, title, description, price, rating, reviews, location, image,
	host_name, host_image, amenities, images, created_at, updated_at`

// ListingRepository reads listings. The booking core never writes them.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository creates a new ListingRepository
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// GetByID retrieves a listing by ID. Returns nil, nil when it does not exist.
func (r *ListingRepository) GetByID(id int64) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.Get(&listing, `SELECT`+listingColumns+` FROM listings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// List returns every listing ordered by ID
func (r *ListingRepository) List() ([]*models.Listing, error) {
	listings := []*models.Listing{}
	if err := r.db.Select(&listings, `SELECT`+listingColumns+` FROM listings ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

// GetByIDs fetches many listings in one round trip. Unknown IDs are skipped.
func (r *ListingRepository) GetByIDs(ids []int64) ([]*models.Listing, error) {
	listings := []*models.Listing{}
	if len(ids) == 0 {
		return listings, nil
	}
	query := `SELECT` + listingColumns + ` FROM listings WHERE id = ANY($1)`
	if err := r.db.Select(&listings, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get listings: %w", err)
	}
	return listings, nil
}
