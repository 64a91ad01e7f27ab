package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const stayDateLayout = "2006-01-02"

// DateRange is a half-open stay window [CheckIn, CheckOut)
type DateRange struct {
	CheckIn  time.Time `json:"check_in" db:"check_in"`
	CheckOut time.Time `json:"check_out" db:"check_out"`
}

// NewDateRange builds a stay window, rejecting empty or inverted ranges
func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	if !checkIn.Before(checkOut) {
		return DateRange{}, fmt.Errorf("%w: check_in must be before check_out", ErrValidation)
	}
	return DateRange{CheckIn: checkIn.UTC(), CheckOut: checkOut.UTC()}, nil
}

// ParseDateRange parses both ends with ParseStayDate and validates the window
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	in, err := ParseStayDate(checkIn)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid check_in: %w", err)
	}
	out, err := ParseStayDate(checkOut)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid check_out: %w", err)
	}
	return NewDateRange(in, out)
}

// ParseStayDate accepts a calendar date (2024-06-10, midnight UTC) or an RFC 3339 instant
func ParseStayDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if t, err := time.Parse(stayDateLayout, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a date (expected YYYY-MM-DD or RFC 3339)", ErrValidation, value)
}

// Overlaps reports whether two half-open ranges share any instant.
// A checkout on day N and a check-in on day N do not overlap.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.CheckIn.Before(other.CheckOut) && r.CheckOut.After(other.CheckIn)
}

// Nights returns the number of billable nights, rounding partial days up
func (r DateRange) Nights() int {
	return int(math.Ceil(r.CheckOut.Sub(r.CheckIn).Hours() / 24))
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.CheckIn.Format(time.RFC3339), r.CheckOut.Format(time.RFC3339))
}
