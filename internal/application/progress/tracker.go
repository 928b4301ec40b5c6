// Package progress contains the application-level progress tracker: the
// thin orchestration around progress.Repository.Apply that resolves the
// achievement's current target_value before each write, per §4.D.
package progress

import (
	"context"
	"fmt"

	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	progressdomain "github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
	"github.com/achievement-engine/engine/internal/observability"
	"github.com/achievement-engine/engine/pkg/keyedmutex"
)

// Tracker applies deltas to per-user achievement progress, always refreshing
// target_value from the current achievement definition so a criteria edit
// takes effect on the very next event.
type Tracker struct {
	achievements catalogdomain.AchievementRepository
	progress     progressdomain.Repository
	locks        *keyedmutex.KeyedMutex
	monitor      *observability.Monitor
}

// NewTracker wires a Tracker against its repositories.
func NewTracker(achievements catalogdomain.AchievementRepository, progressRepo progressdomain.Repository) *Tracker {
	return &Tracker{achievements: achievements, progress: progressRepo, locks: keyedmutex.New()}
}

// SetMonitor feeds every progress storage call through monitor, so §4.I's
// regression detector observes real storage_read/storage_write latencies
// for the progress table rather than only the cache's hit path.
func (t *Tracker) SetMonitor(monitor *observability.Monitor) {
	t.monitor = monitor
}

// Apply resolves the achievement's current target and applies delta to the
// user's progress row for it, returning the resulting transition report.
// Per (user_id, achievement_id) an in-process KeyedMutex serializes this
// read-modify-write ahead of the database's own row lock, so two events for
// the same user and achievement arriving on concurrent goroutines in this
// process never race to read a stale current_value before the repository's
// transaction commits. The underlying repository still computes
// crossed_threshold inside the same transaction that persists current_value.
func (t *Tracker) Apply(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, delta progressdomain.Delta) (progressdomain.TransitionReport, error) {
	achievement, err := t.achievements.GetByID(ctx, achievementID)
	if err != nil {
		return progressdomain.TransitionReport{}, fmt.Errorf("resolving achievement for progress apply: %w", err)
	}

	target := shared.ProgressValue(0)
	if achievement.Type.RequiresTarget() {
		var err error
		target, err = shared.NewProgressValue(achievement.Criteria.TargetValue)
		if err != nil {
			return progressdomain.TransitionReport{}, err
		}
	}

	key := fmt.Sprintf("%s|%d", userID, achievementID)

	var report progressdomain.TransitionReport
	var applyErr error
	t.locks.WithLock(key, func() {
		applyErr = t.monitor.Track(observability.OperationStorageWrite, func() error {
			var err error
			report, err = t.progress.Apply(ctx, userID, achievementID, target, delta)
			return err
		})
	})
	return report, applyErr
}

// Get returns the raw progress row for a user and achievement.
func (t *Tracker) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.AchievementProgress, error) {
	var progress *progressdomain.AchievementProgress
	err := t.monitor.Track(observability.OperationStorageRead, func() error {
		var err error
		progress, err = t.progress.Get(ctx, userID, achievementID)
		return err
	})
	return progress, err
}

// GetByUser returns every progress row for a user, for profile views.
func (t *Tracker) GetByUser(ctx context.Context, userID shared.UserID) ([]*progressdomain.AchievementProgress, error) {
	return t.progress.GetByUser(ctx, userID)
}

// Reset clears a user's progress for an achievement, e.g. an admin reset.
func (t *Tracker) Reset(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) error {
	return t.progress.Reset(ctx, userID, achievementID)
}
