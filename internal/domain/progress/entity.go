// Package progress contains the domain model for per-user achievement
// progress tracking: the AchievementProgress aggregate, the deltas that
// mutate it, and the transition report that downstream award evaluation
// reacts to.
package progress

import (
	"encoding/json"
	"time"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

// AchievementProgress tracks one user's accumulated value toward one
// achievement.
type AchievementProgress struct {
	ID            int64
	UserID        shared.UserID
	AchievementID shared.AchievementID
	CurrentValue  shared.ProgressValue
	TargetValue   shared.ProgressValue
	ProgressData  json.RawMessage // opaque, evaluator-owned
	LastUpdated   time.Time
}

// IsSatisfied reports whether the tracked value has reached target.
func (p *AchievementProgress) IsSatisfied() bool {
	return p.CurrentValue.ReachesTarget(p.TargetValue)
}

// ══════════════════════════════════════════════════════════════════════════════
// DELTA
// ══════════════════════════════════════════════════════════════════════════════

// DeltaKind identifies which mutation a Delta applies.
type DeltaKind int

const (
	// DeltaSet replaces CurrentValue outright.
	DeltaSet DeltaKind = iota
	// DeltaInc adds to CurrentValue.
	DeltaInc
	// DeltaProgressData merges ProgressData without touching CurrentValue.
	DeltaProgressData
	// DeltaSetWithData replaces both CurrentValue and ProgressData together,
	// for evaluators (TIME_BASED) whose window state and derived count must
	// move in the same transaction.
	DeltaSetWithData
)

// Delta describes one mutation to apply to an AchievementProgress row. Which
// of Value / ProgressData is meaningful depends on Kind.
type Delta struct {
	Kind         DeltaKind
	Value        float64
	ProgressData json.RawMessage
}

// Set creates a Delta that replaces the current value.
func Set(value float64) Delta {
	return Delta{Kind: DeltaSet, Value: value}
}

// Inc creates a Delta that increments the current value.
func Inc(amount float64) Delta {
	return Delta{Kind: DeltaInc, Value: amount}
}

// SetProgressData creates a Delta that replaces the opaque progress_data blob
// without touching CurrentValue.
func SetProgressData(data json.RawMessage) Delta {
	return Delta{Kind: DeltaProgressData, ProgressData: data}
}

// SetWithData creates a Delta that replaces CurrentValue and ProgressData
// atomically, e.g. a recomputed window count alongside its backing ring of
// occurrence timestamps.
func SetWithData(value float64, data json.RawMessage) Delta {
	return Delta{Kind: DeltaSetWithData, Value: value, ProgressData: data}
}

// Apply mutates progress in place according to the delta's kind. Callers
// holding the per-(user,achievement) lock are expected to call this inside
// the same transaction that persists the result.
func (d Delta) Apply(p *AchievementProgress) {
	switch d.Kind {
	case DeltaSet:
		p.CurrentValue = shared.ProgressValue(d.Value)
	case DeltaInc:
		p.CurrentValue = shared.ProgressValue(p.CurrentValue.Float64() + d.Value)
	case DeltaProgressData:
		p.ProgressData = d.ProgressData
	case DeltaSetWithData:
		p.CurrentValue = shared.ProgressValue(d.Value)
		p.ProgressData = d.ProgressData
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION REPORT
// ══════════════════════════════════════════════════════════════════════════════

// TransitionReport describes the effect of one apply() call. CrossedThreshold
// is the only signal the trigger engine acts on to invoke award evaluation;
// it is computed from Previous/Current/Target, never stored independently.
type TransitionReport struct {
	UserID        shared.UserID
	AchievementID shared.AchievementID
	Previous      shared.ProgressValue
	Current       shared.ProgressValue
	Target        shared.ProgressValue
}

// CrossedThreshold reports whether this transition moved the tracked value
// from below target to at-or-above target.
func (r TransitionReport) CrossedThreshold() bool {
	return r.Previous.Float64() < r.Target.Float64() && r.Current.ReachesTarget(r.Target)
}

// NewTransitionReport builds a report from a progress row's state before and
// after a Delta was applied.
func NewTransitionReport(userID shared.UserID, achievementID shared.AchievementID, previous, current, target shared.ProgressValue) TransitionReport {
	return TransitionReport{
		UserID:        userID,
		AchievementID: achievementID,
		Previous:      previous,
		Current:       current,
		Target:        target,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// UserAchievement records that a user has earned an achievement. At most one
// row exists per (UserID, AchievementID).
type UserAchievement struct {
	ID            int64
	UserID        shared.UserID
	AchievementID shared.AchievementID
	EarnedAt      time.Time
	Notified      bool
}

// NewUserAchievement creates a new, not-yet-notified award record.
func NewUserAchievement(userID shared.UserID, achievementID shared.AchievementID) *UserAchievement {
	return &UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      time.Now().UTC(),
		Notified:      false,
	}
}
