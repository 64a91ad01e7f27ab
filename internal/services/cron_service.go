package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job schedules, seconds precision: second minute hour day month weekday
const (
	checkoutExpirationSchedule = "0 * * * * *"    // every minute
	rateLimitCleanupSchedule   = "0 */10 * * * *" // every 10 minutes
	auditRetentionSchedule     = "0 0 3 * * *"    // daily at 03:00
)

// CronService manages scheduled background jobs
type CronService struct {
	cron               *cron.Cron
	expirationSvc      *CheckoutExpirationService
	rateLimitSvc       *RateLimitService
	auditSvc           *AuditService
	auditRetentionDays int
	logger             *logrus.Logger
}

// NewCronService creates a new CronService. rateLimitSvc and auditSvc may be
// nil, in which case their jobs are not scheduled.
func NewCronService(expirationSvc *CheckoutExpirationService, rateLimitSvc *RateLimitService, auditSvc *AuditService, auditRetentionDays int, logger *logrus.Logger) *CronService {
	if auditRetentionDays <= 0 {
		auditRetentionDays = 90
	}

	return &CronService{
		cron:               cron.New(cron.WithSeconds()),
		expirationSvc:      expirationSvc,
		rateLimitSvc:       rateLimitSvc,
		auditSvc:           auditSvc,
		auditRetentionDays: auditRetentionDays,
		logger:             logger,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(checkoutExpirationSchedule, s.expireCheckoutsJob); err != nil {
		return fmt.Errorf("failed to schedule checkout expiration job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Expire abandoned checkouts (every minute)")

	if s.rateLimitSvc != nil {
		if _, err := s.cron.AddFunc(rateLimitCleanupSchedule, s.cleanupRateLimitsJob); err != nil {
			return fmt.Errorf("failed to schedule rate limit cleanup job: %w", err)
		}
		s.logger.Info("✓ Scheduled: Cleanup guest lookup attempts (every 10 minutes)")
	}

	if s.auditSvc != nil {
		if _, err := s.cron.AddFunc(auditRetentionSchedule, s.auditRetentionJob); err != nil {
			return fmt.Errorf("failed to schedule audit retention job: %w", err)
		}
		s.logger.Infof("✓ Scheduled: Audit log retention, %d days (daily at 3:00 AM)", s.auditRetentionDays)
	}

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) expireCheckoutsJob() {
	if _, err := s.expirationSvc.RunOnce(); err != nil {
		s.logger.WithError(err).Error("[CRON] Checkout expiration failed")
	}
}

func (s *CronService) cleanupRateLimitsJob() {
	removed, err := s.rateLimitSvc.CleanupExpired()
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Guest lookup attempt cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("[CRON] Cleaned up guest lookup attempts")
	}
}

func (s *CronService) auditRetentionJob() {
	startTime := time.Now()

	removed, err := s.auditSvc.CleanupOldAuditLogs(time.Duration(s.auditRetentionDays) * 24 * time.Hour)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Audit log retention failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"removed":  removed,
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] ✓ Audit log retention complete")
}

// RunCheckoutExpirationNow runs the checkout expiration job immediately
func (s *CronService) RunCheckoutExpirationNow() (int64, error) {
	s.logger.Info("[MANUAL] Running checkout expiration now...")
	return s.expirationSvc.RunOnce()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
