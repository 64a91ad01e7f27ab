package models

import "time"

// Listing is a rentable property. The booking core only reads listings.
type Listing struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Price       float64   `json:"price" db:"price"` // per night
	Rating      float64   `json:"rating" db:"rating"`
	Reviews     int       `json:"reviews" db:"reviews"`
	Location    string    `json:"location" db:"location"`
	Image       string    `json:"image" db:"image"`
	HostName    string    `json:"host_name" db:"host_name"`
	HostImage   string    `json:"host_image" db:"host_image"`
	Amenities   TextArray `json:"amenities" db:"amenities"`
	Images      TextArray `json:"images" db:"images"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ListingSummary is the slice of a listing shown next to a booking
type ListingSummary struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Image    string  `json:"image"`
	Location string  `json:"location"`
	Price    float64 `json:"price"`
}

// Summary projects the fields a booking view needs
func (l *Listing) Summary() *ListingSummary {
	if l == nil {
		return nil
	}
	return &ListingSummary{
		ID:       l.ID,
		Title:    l.Title,
		Image:    l.Image,
		Location: l.Location,
		Price:    l.Price,
	}
}

// Quote is the server-side price of a stay
type Quote struct {
	Nights      int     `json:"nights"`
	NightlyRate float64 `json:"nightly_rate"`
	Subtotal    float64 `json:"subtotal"`
	CleaningFee float64 `json:"cleaning_fee"`
	ServiceFee  float64 `json:"service_fee"`
	Total       float64 `json:"total"`
}

// QuoteStay prices a stay as nights x nightly rate plus flat fees, rounded to cents
func QuoteStay(l *Listing, stay DateRange, cleaningFee, serviceFee float64) Quote {
	nights := stay.Nights()
	subtotal := roundCents(float64(nights) * l.Price)
	return Quote{
		Nights:      nights,
		NightlyRate: l.Price,
		Subtotal:    subtotal,
		CleaningFee: cleaningFee,
		ServiceFee:  serviceFee,
		Total:       roundCents(subtotal + cleaningFee + serviceFee),
	}
}

// Matches reports whether a client-supplied total agrees with the quote within a cent
func (q Quote) Matches(total float64) bool {
	diff := q.Total - total
	if diff < 0 {
		diff = -diff
	}
	return diff <= 0.01
}
