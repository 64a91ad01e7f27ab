// Package payment talks to the hosted checkout provider.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable means the provider could not be reached or failed; retrying may succeed
	ErrUnavailable = errors.New("payment provider unavailable")

	// ErrSessionNotFound means the provider does not know the session id
	ErrSessionNotFound = errors.New("checkout session not found")

	// ErrInvalidRequest means the provider rejected the request as malformed
	ErrInvalidRequest = errors.New("payment request rejected")

	// ErrInvalidSignature means a webhook payload failed signature verification
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Event types acted upon by the webhook handler
const (
	EventCheckoutSessionCompleted      = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// SessionRequest describes a one-line-item hosted checkout
type SessionRequest struct {
	ProductName   string
	ProductImage  string
	Description   string
	AmountCents   int64
	Currency      string
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
	CustomerEmail string
	Metadata      map[string]string
}

// Session is a created checkout session the client redirects to
type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// SessionResult is the provider's view of a session when it is reconciled
type SessionResult struct {
	ID               string
	Paid             bool
	PaymentStatus    string
	PaymentReference string // provider payment id, unique per successful payment
	Refunded         bool   // some or all of the payment has been returned
	AmountTotal      int64
	Currency         string
	Metadata         map[string]string
}

// WebhookEvent is a verified provider callback
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string // set for checkout session events
}

// Gateway is the hosted checkout provider
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionResult, error)
	// Refund returns the full amount of a payment. Repeating it is harmless.
	Refund(ctx context.Context, paymentReference string) error
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
	PublishableKey() string
	GetName() string
}

// ToMinorUnits converts a decimal amount into cents
func ToMinorUnits(amount float64) int64 {
	if amount < 0 {
		return -ToMinorUnits(-amount)
	}
	return int64(amount*100 + 0.5)
}
