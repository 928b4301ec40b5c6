package evaluator

import (
	"encoding/json"
	"time"

	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/pkg/timeutil"
)

// timeWindowState is the opaque progress_data schema TimeBasedEvaluator owns:
// a bounded ring of recent occurrence timestamps used to count how many fall
// within the achievement's rolling window.
type timeWindowState struct {
	Occurrences []time.Time `json:"occurrences"`
}

// maxTrackedOccurrences bounds the ring so progress_data cannot grow
// unboundedly for a high-frequency event type; only the most recent
// occurrences within any plausible window are kept.
const maxTrackedOccurrences = 256

// TimeBasedEvaluator tracks repetition across a rolling window: CurrentValue
// is the number of occurrences inside the window, e.g. "join voice 5 times
// within 7 days".
type TimeBasedEvaluator struct {
	eventTypes []string
}

// NewTimeBasedEvaluator builds a TimeBasedEvaluator that reacts to eventTypes.
func NewTimeBasedEvaluator(eventTypes []string) *TimeBasedEvaluator {
	return &TimeBasedEvaluator{eventTypes: eventTypes}
}

func (e *TimeBasedEvaluator) CandidateEventTypes() []string {
	return e.eventTypes
}

func (e *TimeBasedEvaluator) ApplyEvent(criteria catalog.Criteria, current *progress.AchievementProgress, event *events.EventRecord) (progress.Delta, bool, error) {
	var state timeWindowState
	if len(current.ProgressData) > 0 {
		if err := json.Unmarshal(current.ProgressData, &state); err != nil {
			return progress.Delta{}, false, err
		}
	}

	window := criteria.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := event.Timestamp.Add(-window)

	kept := state.Occurrences[:0]
	for _, ts := range state.Occurrences {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, event.Timestamp)
	if len(kept) > maxTrackedOccurrences {
		kept = kept[len(kept)-maxTrackedOccurrences:]
	}

	raw, err := json.Marshal(timeWindowState{Occurrences: kept})
	if err != nil {
		return progress.Delta{}, false, err
	}

	count := float64(len(kept))
	return progress.SetWithData(count, raw), true, nil
}

// DistinctDayCount returns how many distinct UTC calendar days are
// represented among the evaluator's tracked occurrences, for criteria
// phrased as "N distinct days within a window" rather than a raw event
// count. IsSatisfied still compares against current.CurrentValue, so
// callers that need day-based criteria should use this instead of
// CurrentValue when rendering progress toward that kind of achievement.
func (e *TimeBasedEvaluator) DistinctDayCount(current *progress.AchievementProgress) (int, error) {
	var state timeWindowState
	if len(current.ProgressData) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(current.ProgressData, &state); err != nil {
		return 0, err
	}

	days := 0
	for i, ts := range state.Occurrences {
		distinct := true
		for _, earlier := range state.Occurrences[:i] {
			if timeutil.IsSameDay(ts, earlier) {
				distinct = false
				break
			}
		}
		if distinct {
			days++
		}
	}
	return days, nil
}

func (e *TimeBasedEvaluator) IsSatisfied(criteria catalog.Criteria, current *progress.AchievementProgress) bool {
	return current.IsSatisfied()
}
