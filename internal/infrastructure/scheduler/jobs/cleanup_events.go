package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/achievement-engine/engine/internal/domain/events"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLEANUP EVENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// CleanupEventsJob deletes event records older than ArchiveAfter from the
// hot table. ArchiveEventsJob removes the processed records it archives, so
// what cleanup finds is mostly unprocessed events; with KeepProcessed set,
// processed records still present are deleted too, without being archived.
type CleanupEventsJob struct {
	events events.Repository
	logger *slog.Logger
	config CleanupEventsConfig
}

// CleanupEventsConfig configures the cleanup job.
type CleanupEventsConfig struct {
	// ArchiveAfter is the cutoff age; events older than this are deleted.
	// It is independent of ArchiveEventsJob's RetentionPeriod, so a shorter
	// value deletes processed records before they are archived.
	ArchiveAfter time.Duration

	// KeepProcessed mirrors events.Repository.CleanupOldEvents's flag: when
	// true, every old record is deleted regardless of processed state, when
	// false only unprocessed stragglers are swept.
	KeepProcessed bool
}

// DefaultCleanupEventsConfig returns sensible defaults.
func DefaultCleanupEventsConfig() CleanupEventsConfig {
	return CleanupEventsConfig{ArchiveAfter: 30 * 24 * time.Hour, KeepProcessed: true}
}

// NewCleanupEventsJob creates a new CleanupEventsJob.
func NewCleanupEventsJob(eventRepo events.Repository, logger *slog.Logger, config CleanupEventsConfig) *CleanupEventsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ArchiveAfter <= 0 {
		config = DefaultCleanupEventsConfig()
	}
	return &CleanupEventsJob{events: eventRepo, logger: logger, config: config}
}

// Name returns the job name.
func (j *CleanupEventsJob) Name() string { return "cleanup_events" }

// Description returns a human-readable description.
func (j *CleanupEventsJob) Description() string {
	return "Deletes event records older than the cleanup window"
}

// Run executes the cleanup job.
func (j *CleanupEventsJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.config.ArchiveAfter)

	affected, err := j.events.CleanupOldEvents(ctx, cutoff, j.config.KeepProcessed)
	if err != nil {
		return fmt.Errorf("cleanup old events: %w", err)
	}

	j.logger.Info("cleanup_events job completed", "deleted", affected, "cutoff", cutoff)
	return nil
}
