package jobs

import (
	"context"
	"fmt"
	"log/slog"
)

// ══════════════════════════════════════════════════════════════════════════════
// RETRY NOTIFICATIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// NotificationRetrier re-attempts delivery of failed notifications still
// under their retry budget. Implemented by notifier.Router.
type NotificationRetrier interface {
	RetryFailed(ctx context.Context, maxRetries, batchSize int) (int, error)
}

// RetryNotificationsJob periodically sweeps notifications stuck in
// StatusFailed that have not yet exhausted MaxRetries and retries them.
type RetryNotificationsJob struct {
	router NotificationRetrier
	logger *slog.Logger
	config RetryNotificationsConfig
}

// RetryNotificationsConfig configures the retry job.
type RetryNotificationsConfig struct {
	MaxRetries int
	BatchSize  int
}

// DefaultRetryNotificationsConfig returns sensible defaults.
func DefaultRetryNotificationsConfig() RetryNotificationsConfig {
	return RetryNotificationsConfig{MaxRetries: 3, BatchSize: 100}
}

// NewRetryNotificationsJob creates a new RetryNotificationsJob.
func NewRetryNotificationsJob(router NotificationRetrier, logger *slog.Logger, config RetryNotificationsConfig) *RetryNotificationsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config = DefaultRetryNotificationsConfig()
	}
	return &RetryNotificationsJob{router: router, logger: logger, config: config}
}

// Name returns the job name.
func (j *RetryNotificationsJob) Name() string { return "retry_notifications" }

// Description returns a human-readable description.
func (j *RetryNotificationsJob) Description() string {
	return "Retries delivery of failed notifications still under their retry budget"
}

// Run executes the retry job.
func (j *RetryNotificationsJob) Run(ctx context.Context) error {
	retried, err := j.router.RetryFailed(ctx, j.config.MaxRetries, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("retry failed notifications: %w", err)
	}

	j.logger.Info("retry_notifications job completed", "retried", retried)
	return nil
}
