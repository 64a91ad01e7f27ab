package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

const checkoutExpirationBatchSize = 100

// CheckoutExpirationService marks abandoned checkout sessions expired.
// Open sessions never hold dates, so this is bookkeeping only; bookings are not touched.
type CheckoutExpirationService struct {
	sessions CheckoutSessionStore
	logger   *logrus.Logger
}

// NewCheckoutExpirationService creates a new checkout expiration service
func NewCheckoutExpirationService(sessions CheckoutSessionStore, logger *logrus.Logger) *CheckoutExpirationService {
	return &CheckoutExpirationService{
		sessions: sessions,
		logger:   logger,
	}
}

// RunOnce expires every open session past its expiry, one batch at a time,
// and returns how many were expired
func (s *CheckoutExpirationService) RunOnce() (int64, error) {
	start := time.Now()
	var total int64

	for {
		n, err := s.sessions.ExpireOpenSessions(checkoutExpirationBatchSize)
		if err != nil {
			s.logger.WithError(err).WithField("expired_so_far", total).Error("Failed to expire checkout sessions")
			return total, err
		}
		total += n
		if n < checkoutExpirationBatchSize {
			break
		}
	}

	if total > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  total,
			"duration": time.Since(start).String(),
		}).Info("Expired abandoned checkout sessions")
	}
	return total, nil
}
