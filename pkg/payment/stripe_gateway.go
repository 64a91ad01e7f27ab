package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	HTTPClient     *http.Client // optional
	APIURL         string       // optional override of the API base URL
}

// StripeGateway implements Gateway with Stripe Checkout
type StripeGateway struct {
	api            *client.API
	publishableKey string
	webhookSecret  string
}

// NewStripeGateway creates a Stripe Checkout gateway
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	backends := stripe.NewBackends(httpClient)
	if cfg.APIURL != "" {
		backends.API = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient:        httpClient,
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
	}

	return &StripeGateway{
		api:            client.New(cfg.SecretKey, backends),
		publishableKey: cfg.PublishableKey,
		webhookSecret:  cfg.WebhookSecret,
	}
}

// CreateSession opens a payment-mode checkout with a single line item
func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.ProductName),
	}
	if req.Description != "" {
		product.Description = stripe.String(req.Description)
	}
	if req.ProductImage != "" {
		product.Images = stripe.StringSlice([]string{req.ProductImage})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(req.Currency),
					ProductData: product,
					UnitAmount:  stripe.Int64(req.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		ExpiresAt:  stripe.Int64(req.ExpiresAt.Unix()),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	return &Session{
		ID:        s.ID,
		URL:       s.URL,
		ExpiresAt: time.Unix(s.ExpiresAt, 0).UTC(),
	}, nil
}

// RetrieveSession fetches a session's payment state and metadata. The charge
// is expanded so a refund is visible without a local record of it.
func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*SessionResult, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent.latest_charge")
	params.Context = ctx

	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	result := &SessionResult{
		ID:            s.ID,
		Paid:          s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		result.PaymentReference = s.PaymentIntent.ID
		if charge := s.PaymentIntent.LatestCharge; charge != nil {
			result.Refunded = charge.Refunded || charge.AmountRefunded > 0
		}
	} else {
		// Zero-amount sessions have no payment intent; the session id is still unique
		result.PaymentReference = s.ID
	}
	return result, nil
}

// Refund returns a payment in full. The idempotency key makes retries safe.
func (g *StripeGateway) Refund(ctx context.Context, paymentReference string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentReference),
	}
	params.SetIdempotencyKey("refund-" + paymentReference)
	params.Context = ctx

	if _, err := g.api.Refunds.New(params); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return nil
		}
		return classifyStripeError(err)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch result.Type {
	case EventCheckoutSessionCompleted, EventCheckoutAsyncPaymentSucceeded:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: malformed checkout session payload", ErrInvalidRequest)
		}
		result.SessionID = s.ID
	}
	return result, nil
}

// PublishableKey returns the client-side key
func (g *StripeGateway) PublishableKey() string {
	return g.publishableKey
}

// GetName returns the name of this gateway
func (g *StripeGateway) GetName() string {
	return "Stripe Checkout"
}

// classifyStripeError separates caller mistakes from provider outages
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("%w: %s", ErrSessionNotFound, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, stripeErr.Msg)
	default:
		return fmt.Errorf("%w: %s", ErrUnavailable, stripeErr.Msg)
	}
}
