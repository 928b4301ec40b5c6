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

func reactionEmojiPredicate(expr map[string]interface{}, payload map[string]interface{}) (bool, error) {
	want, _ := expr["emoji"].(string)
	got, _ := payload["emoji"].(string)
	return want != "" && want == got, nil
}

func TestConditionalEvaluator_ApplyEvent(t *testing.T) {
	e := NewConditionalEvaluator([]string{"discord.reaction_added"}, map[string]Predicate{
		"reaction_emoji": reactionEmojiPredicate,
	})

	t.Run("matching predicate sets satisfied", func(t *testing.T) {
		criteria := catalog.Criteria{Expr: map[string]interface{}{"op": "reaction_emoji", "emoji": "tada"}}
		event := &events.EventRecord{EventData: json.RawMessage(`{"emoji": "tada"}`)}
		delta, ok, err := e.ApplyEvent(criteria, &progress.AchievementProgress{}, event)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, progress.DeltaSet, delta.Kind)
		assert.Equal(t, 1.0, delta.Value)
	})

	t.Run("non-matching predicate is skipped", func(t *testing.T) {
		criteria := catalog.Criteria{Expr: map[string]interface{}{"op": "reaction_emoji", "emoji": "tada"}}
		event := &events.EventRecord{EventData: json.RawMessage(`{"emoji": "thumbsup"}`)}
		_, ok, err := e.ApplyEvent(criteria, &progress.AchievementProgress{}, event)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unregistered op errors", func(t *testing.T) {
		criteria := catalog.Criteria{Expr: map[string]interface{}{"op": "unknown_op"}}
		event := &events.EventRecord{EventData: json.RawMessage(`{}`)}
		_, _, err := e.ApplyEvent(criteria, &progress.AchievementProgress{}, event)
		assert.Error(t, err)
	})
}
