package progress

import (
	"context"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

// Repository persists AchievementProgress and UserAchievement rows. Apply is
// the sole write path for AchievementProgress: it performs an atomic
// read-modify-write against the unique (user_id, achievement_id) row,
// inserting it if absent, and must compute the returned TransitionReport
// inside the same transaction that persists the new CurrentValue.
type Repository interface {
	// Apply reads, mutates via delta, and persists the progress row for
	// (userID, achievementID) in a single transaction, refreshing TargetValue
	// from the achievement's current criteria. targetValue is supplied by the
	// caller (the application layer has already resolved the achievement).
	Apply(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, targetValue shared.ProgressValue, delta Delta) (TransitionReport, error)

	Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*AchievementProgress, error)

	// GetByUser returns every progress row for a user, used for profile views.
	GetByUser(ctx context.Context, userID shared.UserID) ([]*AchievementProgress, error)

	// Reset deletes a user's progress row for an achievement, e.g. when an
	// admin resets a user's state.
	Reset(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) error

	// DeleteByAchievement removes every progress row for an achievement,
	// used when an achievement is deleted (cascade).
	DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (affected int64, err error)
}

// AwardRepository persists UserAchievement rows and implements the
// at-most-once award protocol.
type AwardRepository interface {
	// Award attempts to insert a UserAchievement row for (userID,
	// achievementID), relying on a unique constraint to absorb duplicate
	// concurrent awards. Returns (record, true, nil) on a fresh insert, or
	// (existing, false, nil) if the user already held the achievement.
	Award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (record *UserAchievement, awarded bool, err error)

	Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*UserAchievement, error)

	GetByUser(ctx context.Context, userID shared.UserID) ([]*UserAchievement, error)

	MarkNotified(ctx context.Context, id int64) error

	// DeleteByAchievement removes every award row for an achievement, used
	// when an achievement is deleted (cascade).
	DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (affected int64, err error)
}
