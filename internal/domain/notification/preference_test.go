package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultPreference(t *testing.T) {
	p := NewDefaultPreference(RecipientID("u1"), "g1")

	assert.True(t, p.DMEnabled)
	assert.True(t, p.AnnouncementEnabled)
	assert.True(t, p.Enabled)
	assert.Empty(t, p.OptOutCategories)
	assert.Equal(t, -1, p.QuietHoursStart)
	assert.Equal(t, -1, p.QuietHoursEnd)
}

func TestPreference_AllowsCategory(t *testing.T) {
	p := NewDefaultPreference(RecipientID("u1"), "g1")
	assert.True(t, p.AllowsCategory("social"))

	p.OptOut("social")
	assert.False(t, p.AllowsCategory("social"))
	assert.True(t, p.AllowsCategory("gaming"))

	p.OptIn("social")
	assert.True(t, p.AllowsCategory("social"))
}

func TestPreference_AllowsCategory_Disabled(t *testing.T) {
	p := NewDefaultPreference(RecipientID("u1"), "g1")
	p.Enabled = false
	assert.False(t, p.AllowsCategory("anything"))
}

func TestPreference_InQuietHours(t *testing.T) {
	tests := []struct {
		name  string
		start int
		end   int
		hour  int
		want  bool
	}{
		{"disabled when start is -1", -1, -1, 3, false},
		{"simple same-day window, inside", 22, 23, 22, true},
		{"simple same-day window, outside", 9, 17, 20, false},
		{"wraps past midnight, inside late", 22, 6, 23, true},
		{"wraps past midnight, inside early", 22, 6, 3, true},
		{"wraps past midnight, outside", 22, 6, 12, false},
		{"start equals end means never quiet", 9, 9, 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDefaultPreference(RecipientID("u1"), "g1")
			p.QuietHoursStart = tt.start
			p.QuietHoursEnd = tt.end
			assert.Equal(t, tt.want, p.InQuietHours(tt.hour))
		})
	}
}

func TestNewDefaultGlobalSettings(t *testing.T) {
	s := NewDefaultGlobalSettings("g1")

	assert.Equal(t, "g1", s.GuildID)
	assert.False(t, s.AnnounceAwards)
	assert.False(t, s.DailyDigestEnabled)
	assert.Equal(t, ChannelTypeDirectMessage, s.DefaultChannel)
	assert.Equal(t, 9, s.DailyDigestHour)
}
