// Package jobs contains implementations of scheduled jobs for the
// achievement engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/achievement-engine/engine/internal/domain/events"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARCHIVE EVENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ArchiveEventsJob moves processed event records older than RetentionPeriod
// into cold storage, keeping the hot event_records table small for the
// trigger engine's FetchUnprocessed scans.
type ArchiveEventsJob struct {
	events events.Repository
	logger *slog.Logger
	config ArchiveEventsConfig
}

// ArchiveEventsConfig configures the archive job.
type ArchiveEventsConfig struct {
	// RetentionPeriod is how long a processed event stays in the hot table
	// before being archived.
	RetentionPeriod time.Duration
}

// DefaultArchiveEventsConfig returns sensible defaults.
func DefaultArchiveEventsConfig() ArchiveEventsConfig {
	return ArchiveEventsConfig{RetentionPeriod: 30 * 24 * time.Hour}
}

// NewArchiveEventsJob creates a new ArchiveEventsJob.
func NewArchiveEventsJob(eventRepo events.Repository, logger *slog.Logger, config ArchiveEventsConfig) *ArchiveEventsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RetentionPeriod <= 0 {
		config = DefaultArchiveEventsConfig()
	}
	return &ArchiveEventsJob{events: eventRepo, logger: logger, config: config}
}

// Name returns the job name.
func (j *ArchiveEventsJob) Name() string { return "archive_events" }

// Description returns a human-readable description.
func (j *ArchiveEventsJob) Description() string {
	return "Moves processed events older than the retention period into cold storage"
}

// Run executes the archive job.
func (j *ArchiveEventsJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.config.RetentionPeriod)

	archived, err := j.events.ArchiveOldEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive old events: %w", err)
	}

	j.logger.Info("archive_events job completed", "archived", archived, "cutoff", cutoff)
	return nil
}
