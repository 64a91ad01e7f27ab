package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/staylet/rental-booking-backend/internal/config"
	"github.com/staylet/rental-booking-backend/internal/database"
)

// Identifier types stored in guest_lookup_attempts
const (
	LimitTypeReference = "reference"
	LimitTypeIP        = "ip"
)

// RateLimitService throttles guest lookups (track and guest cancel)
type RateLimitService struct {
	db     database.DB
	config config.RateLimitConfig
}

// NewRateLimitService creates a new rate limit service. Zero values in cfg
// fall back to DefaultRateLimitConfig.
func NewRateLimitService(db database.DB, cfg config.RateLimitConfig) *RateLimitService {
	defaults := DefaultRateLimitConfig()
	if cfg.MaxReferenceAttempts <= 0 {
		cfg.MaxReferenceAttempts = defaults.MaxReferenceAttempts
	}
	if cfg.ReferenceWindow <= 0 {
		cfg.ReferenceWindow = defaults.ReferenceWindow
	}
	if cfg.MaxIPAttempts <= 0 {
		cfg.MaxIPAttempts = defaults.MaxIPAttempts
	}
	if cfg.IPWindow <= 0 {
		cfg.IPWindow = defaults.IPWindow
	}

	return &RateLimitService{
		db:     db,
		config: cfg,
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		MaxReferenceAttempts: 5,                // 5 failed lookups
		ReferenceWindow:      15 * time.Minute, // per 15 minutes
		MaxIPAttempts:        30,               // 30 failed lookups
		IPWindow:             1 * time.Hour,    // per hour
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "reference" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckGuestLookup checks if a booking reference or IP has exceeded its failed lookup budget
func (s *RateLimitService) CheckGuestLookup(reference, ip string) error {
	if reference != "" {
		count, lastAttempt, err := s.getAttemptCount(reference, LimitTypeReference, s.config.ReferenceWindow)
		if err != nil {
			return fmt.Errorf("failed to check reference rate limit: %w", err)
		}

		if count >= s.config.MaxReferenceAttempts {
			retryAfter := lastAttempt.Add(s.config.ReferenceWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many attempts for this booking reference. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       LimitTypeReference,
			}
		}
	}

	if ip != "" {
		count, lastAttempt, err := s.getAttemptCount(ip, LimitTypeIP, s.config.IPWindow)
		if err != nil {
			return fmt.Errorf("failed to check IP rate limit: %w", err)
		}

		if count >= s.config.MaxIPAttempts {
			retryAfter := lastAttempt.Add(s.config.IPWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many booking lookups from this IP address. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       LimitTypeIP,
			}
		}
	}

	return nil
}

// getAttemptCount gets the number of failed attempts within the time window
func (s *RateLimitService) getAttemptCount(identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	windowStart := time.Now().Add(-window)

	query := `
		SELECT COUNT(*), COALESCE(MAX(created_at), NOW())
		FROM guest_lookup_attempts
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var count int
	var lastAttempt time.Time

	err := s.db.QueryRow(query, identifier, identifierType, windowStart).Scan(&count, &lastAttempt)
	if err != nil && err != sql.ErrNoRows {
		return 0, time.Time{}, err
	}

	return count, lastAttempt, nil
}

// RecordFailedLookup records a lookup that matched no booking
func (s *RateLimitService) RecordFailedLookup(reference, ip string) error {
	if reference != "" {
		if err := s.recordAttempt(reference, LimitTypeReference); err != nil {
			return fmt.Errorf("failed to record reference attempt: %w", err)
		}
	}

	if ip != "" {
		if err := s.recordAttempt(ip, LimitTypeIP); err != nil {
			return fmt.Errorf("failed to record IP attempt: %w", err)
		}
	}

	return nil
}

func (s *RateLimitService) recordAttempt(identifier, identifierType string) error {
	query := `
		INSERT INTO guest_lookup_attempts (identifier, identifier_type, created_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.Exec(query, identifier, identifierType)
	return err
}

// CleanupExpired removes attempts older than the longest window
func (s *RateLimitService) CleanupExpired() (int64, error) {
	maxWindow := s.config.IPWindow
	if s.config.ReferenceWindow > maxWindow {
		maxWindow = s.config.ReferenceWindow
	}

	cutoffTime := time.Now().Add(-maxWindow)

	query := `
		DELETE FROM guest_lookup_attempts
		WHERE created_at < $1
	`

	result, err := s.db.Exec(query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup lookup attempts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// IsRateLimited checks if an identifier is currently rate limited
func (s *RateLimitService) IsRateLimited(identifier, identifierType string) (bool, time.Time, error) {
	window := s.config.ReferenceWindow
	maxAttempts := s.config.MaxReferenceAttempts
	if identifierType == LimitTypeIP {
		window = s.config.IPWindow
		maxAttempts = s.config.MaxIPAttempts
	}

	count, lastAttempt, err := s.getAttemptCount(identifier, identifierType, window)
	if err != nil {
		return false, time.Time{}, err
	}

	if count >= maxAttempts {
		return true, lastAttempt.Add(window), nil
	}

	return false, time.Time{}, nil
}
