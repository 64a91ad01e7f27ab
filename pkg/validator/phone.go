package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates phone number contains characters other than digits and separators
	ErrInvalidFormat = errors.New("phone number can only contain digits, spaces, dashes, dots, parentheses and a leading +")

	// ErrInvalidLength indicates the digit count is outside E.164 bounds
	ErrInvalidLength = errors.New("phone number must have between 7 and 15 digits")
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

var (
	separatorReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	digitsOnly        = regexp.MustCompile(`^\d+$`)
)

// PhoneValidator validates guest phone numbers and produces the canonical
// form used for storage and lookup.
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate returns the canonical phone number or an error.
// Accepts 077 123 4567, 077-123-4567, +94 77 123 4567, (212) 555-0100 and similar.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	digits := strings.TrimPrefix(sanitized, "+")

	if !digitsOnly.MatchString(digits) {
		return "", ErrInvalidFormat
	}
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", ErrInvalidLength
	}
	return sanitized, nil
}

// Sanitize strips separators. A leading + is kept; Sri Lankan numbers written
// with the 94 country code are folded to the local 0XXXXXXXXX form so both
// spellings match the same booking.
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = separatorReplacer.Replace(strings.TrimSpace(phone))

	local := strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(local, "94") && len(local) == 11 {
		return "0" + local[2:]
	}
	return phone
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// Canonical returns the canonical form of a valid phone, or the trimmed input
// when it does not validate. Lookups use it so that a malformed phone simply
// fails to match instead of erroring.
func (v *PhoneValidator) Canonical(phone string) string {
	if sanitized, err := v.Validate(phone); err == nil {
		return sanitized
	}
	return strings.TrimSpace(phone)
}
