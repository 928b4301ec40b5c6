package evaluator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/progress"
)

func TestCounterEvaluator_ApplyEvent(t *testing.T) {
	e := NewCounterEvaluator([]string{"discord.message_sent"})

	t.Run("default amount is one", func(t *testing.T) {
		event := &events.EventRecord{EventData: json.RawMessage(`{}`)}
		delta, ok, err := e.ApplyEvent(catalog.Criteria{}, &progress.AchievementProgress{}, event)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, progress.DeltaInc, delta.Kind)
		assert.Equal(t, 1.0, delta.Value)
	})

	t.Run("explicit amount is honored", func(t *testing.T) {
		event := &events.EventRecord{EventData: json.RawMessage(`{"amount": 5}`)}
		delta, ok, err := e.ApplyEvent(catalog.Criteria{}, &progress.AchievementProgress{}, event)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 5.0, delta.Value)
	})

	t.Run("mismatched counter field is skipped", func(t *testing.T) {
		event := &events.EventRecord{EventData: json.RawMessage(`{"field": "reactions_given", "amount": 1}`)}
		_, ok, err := e.ApplyEvent(catalog.Criteria{CounterField: "messages_sent"}, &progress.AchievementProgress{}, event)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("matching counter field is applied", func(t *testing.T) {
		event := &events.EventRecord{EventData: json.RawMessage(`{"field": "messages_sent", "amount": 2}`)}
		delta, ok, err := e.ApplyEvent(catalog.Criteria{CounterField: "messages_sent"}, &progress.AchievementProgress{}, event)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2.0, delta.Value)
	})

	t.Run("invalid json errors", func(t *testing.T) {
		event := &events.EventRecord{EventData: json.RawMessage(`not json`)}
		_, _, err := e.ApplyEvent(catalog.Criteria{}, &progress.AchievementProgress{}, event)
		assert.Error(t, err)
	})
}

func TestCounterEvaluator_IsSatisfied(t *testing.T) {
	e := NewCounterEvaluator(nil)
	p := &progress.AchievementProgress{CurrentValue: 100, TargetValue: 100}
	assert.True(t, e.IsSatisfied(catalog.Criteria{}, p))

	p.CurrentValue = 99
	assert.False(t, e.IsSatisfied(catalog.Criteria{}, p))
}
