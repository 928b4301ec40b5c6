package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

func TestDelta_Apply(t *testing.T) {
	tests := []struct {
		name     string
		start    shared.ProgressValue
		delta    Delta
		wantVal  shared.ProgressValue
		wantData string
	}{
		{"set replaces value", 10, Set(5), 5, ""},
		{"inc adds to value", 10, Inc(3), 13, ""},
		{"inc from zero", 0, Inc(1), 1, ""},
		{"set_with_data replaces both", 10, SetWithData(7, json.RawMessage(`{"a":1}`)), 7, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &AchievementProgress{CurrentValue: tt.start}
			tt.delta.Apply(p)
			assert.Equal(t, tt.wantVal, p.CurrentValue)
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, string(p.ProgressData))
			}
		})
	}
}

func TestDelta_Apply_ProgressDataOnly(t *testing.T) {
	p := &AchievementProgress{CurrentValue: 42}
	SetProgressData(json.RawMessage(`{"window":[1,2,3]}`)).Apply(p)

	assert.Equal(t, shared.ProgressValue(42), p.CurrentValue, "progress-data delta must not touch CurrentValue")
	assert.JSONEq(t, `{"window":[1,2,3]}`, string(p.ProgressData))
}

func TestAchievementProgress_IsSatisfied(t *testing.T) {
	p := &AchievementProgress{CurrentValue: 10, TargetValue: 10}
	assert.True(t, p.IsSatisfied())

	p.CurrentValue = 9
	assert.False(t, p.IsSatisfied())

	p.CurrentValue = 11
	assert.True(t, p.IsSatisfied())
}

func TestTransitionReport_CrossedThreshold(t *testing.T) {
	tests := []struct {
		name     string
		previous shared.ProgressValue
		current  shared.ProgressValue
		target   shared.ProgressValue
		want     bool
	}{
		{"crosses on this transition", 8, 10, 10, true},
		{"already satisfied before and after", 10, 12, 10, false},
		{"still below target", 3, 7, 10, false},
		{"exact landing on target", 9, 10, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewTransitionReport(shared.UserID("u1"), shared.AchievementID("a1"), tt.previous, tt.current, tt.target)
			assert.Equal(t, tt.want, r.CrossedThreshold())
		})
	}
}

func TestNewUserAchievement(t *testing.T) {
	ua := NewUserAchievement(shared.UserID("u1"), shared.AchievementID("a1"))

	assert.Equal(t, shared.UserID("u1"), ua.UserID)
	assert.Equal(t, shared.AchievementID("a1"), ua.AchievementID)
	assert.False(t, ua.Notified)
	assert.False(t, ua.EarnedAt.IsZero())
}
