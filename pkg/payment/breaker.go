package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerGateway bounds every provider call with a timeout and a circuit
// breaker. While the breaker is open calls fail fast with ErrUnavailable.
// Caller mistakes (ErrSessionNotFound, ErrInvalidRequest) pass through and do
// not count as provider failures.
type BreakerGateway struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewBreakerGateway wraps a gateway. The breaker opens after 3 consecutive
// failures and lets one probe through after 10 seconds.
func NewBreakerGateway(next Gateway, timeout time.Duration, logger *logrus.Logger) *BreakerGateway {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.GetName(),
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 2
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"gateway": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Payment gateway circuit breaker changed state")
		},
	})

	return &BreakerGateway{next: next, cb: cb, timeout: timeout}
}

// CreateSession implements Gateway
func (g *BreakerGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	var session *Session
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		session, err = g.next.CreateSession(ctx, req)
		return err
	})
	return session, err
}

// RetrieveSession implements Gateway
func (g *BreakerGateway) RetrieveSession(ctx context.Context, sessionID string) (*SessionResult, error) {
	var result *SessionResult
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		result, err = g.next.RetrieveSession(ctx, sessionID)
		return err
	})
	return result, err
}

// Refund implements Gateway
func (g *BreakerGateway) Refund(ctx context.Context, paymentReference string) error {
	return g.call(ctx, func(ctx context.Context) error {
		return g.next.Refund(ctx, paymentReference)
	})
}

// ParseWebhook is local signature verification and bypasses the breaker
func (g *BreakerGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return g.next.ParseWebhook(payload, signature)
}

// PublishableKey implements Gateway
func (g *BreakerGateway) PublishableKey() string {
	return g.next.PublishableKey()
}

// GetName implements Gateway
func (g *BreakerGateway) GetName() string {
	return g.next.GetName()
}

// State exposes the breaker state for health reporting
func (g *BreakerGateway) State() gobreaker.State {
	return g.cb.State()
}

func (g *BreakerGateway) call(ctx context.Context, fn func(ctx context.Context) error) error {
	var callerErr error

	_, err := g.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		err := fn(callCtx)
		if isCallerError(err) {
			// Reported to the caller but counted as a healthy round trip
			callerErr = err
			return nil, nil
		}
		return nil, err
	})

	switch {
	case callerErr != nil:
		return callerErr
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func isCallerError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrInvalidRequest)
}
