package models

import "errors"

// Booking subsystem error taxonomy. Callers wrap these with fmt.Errorf("...: %w")
// and test them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("dates are already booked")
	ErrDuplicatePayment    = errors.New("payment already recorded")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrUpstreamUnavailable = errors.New("payment gateway unavailable")
	ErrAlreadyCancelled    = errors.New("booking is already cancelled")
	ErrPaymentIncomplete   = errors.New("payment not successful")
	ErrCodeSpaceExhausted  = errors.New("could not allocate a unique booking reference")
)
