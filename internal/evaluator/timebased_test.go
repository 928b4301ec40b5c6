package evaluator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/progress"
)

func TestTimeBasedEvaluator_ApplyEvent_AccumulatesWithinWindow(t *testing.T) {
	e := NewTimeBasedEvaluator([]string{"discord.voice_joined"})
	criteria := catalog.Criteria{Window: 7 * 24 * time.Hour}

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	current := &progress.AchievementProgress{}

	for i := 0; i < 3; i++ {
		event := &events.EventRecord{Timestamp: now.Add(time.Duration(i) * time.Hour)}
		delta, ok, err := e.ApplyEvent(criteria, current, event)
		require.NoError(t, err)
		require.True(t, ok)
		delta.Apply(current)
	}

	assert.Equal(t, 3.0, current.CurrentValue.Float64())

	var state timeWindowState
	require.NoError(t, json.Unmarshal(current.ProgressData, &state))
	assert.Len(t, state.Occurrences, 3)
}

func TestTimeBasedEvaluator_ApplyEvent_DropsOutsideWindow(t *testing.T) {
	e := NewTimeBasedEvaluator([]string{"discord.voice_joined"})
	criteria := catalog.Criteria{Window: 24 * time.Hour}

	old := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(timeWindowState{Occurrences: []time.Time{old}})
	require.NoError(t, err)
	current := &progress.AchievementProgress{ProgressData: raw}

	recent := old.Add(10 * 24 * time.Hour)
	event := &events.EventRecord{Timestamp: recent}

	delta, ok, err := e.ApplyEvent(criteria, current, event)
	require.NoError(t, err)
	require.True(t, ok)

	var state timeWindowState
	require.NoError(t, json.Unmarshal(delta.ProgressData, &state))
	assert.Len(t, state.Occurrences, 1, "occurrence outside the rolling window must be dropped")
	assert.Equal(t, 1.0, delta.Value)
}

func TestTimeBasedEvaluator_DistinctDayCount(t *testing.T) {
	e := NewTimeBasedEvaluator([]string{"discord.voice_joined"})
	criteria := catalog.Criteria{Window: 14 * 24 * time.Hour}

	day1 := time.Date(2026, 7, 20, 9, 0, 0, 0, time.UTC)
	day1Later := day1.Add(3 * time.Hour)
	day2 := day1.AddDate(0, 0, 1)

	current := &progress.AchievementProgress{}
	for _, ts := range []time.Time{day1, day1Later, day2} {
		delta, _, err := e.ApplyEvent(criteria, current, &events.EventRecord{Timestamp: ts})
		require.NoError(t, err)
		delta.Apply(current)
	}

	days, err := e.DistinctDayCount(current)
	require.NoError(t, err)
	assert.Equal(t, 2, days, "two occurrences on day1 must count as a single distinct day")
}

func TestTimeBasedEvaluator_ApplyEvent_DefaultsWindow(t *testing.T) {
	e := NewTimeBasedEvaluator(nil)
	current := &progress.AchievementProgress{}
	event := &events.EventRecord{Timestamp: time.Now()}

	delta, ok, err := e.ApplyEvent(catalog.Criteria{}, current, event)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, delta.Value)
}
