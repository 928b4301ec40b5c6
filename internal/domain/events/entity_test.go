package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

func TestNewEventRecord_StartsUnprocessed(t *testing.T) {
	record := NewEventRecord(shared.UserID("u1"), shared.GuildID("g1"), "discord.message_sent", json.RawMessage(`{}`))
	assert.False(t, record.Processed)
	assert.Equal(t, shared.UserID("u1"), record.UserID)
	assert.WithinDuration(t, record.Timestamp, record.Timestamp, 0)
}

func TestEventRecord_WithChannelAndCorrelationID(t *testing.T) {
	record := NewEventRecord(shared.UserID("u1"), shared.GuildID("g1"), "discord.message_sent", json.RawMessage(`{}`)).
		WithChannel("c1").
		WithCorrelationID("corr-1")

	assert.Equal(t, "c1", record.ChannelID)
	assert.Equal(t, "corr-1", record.CorrelationID)
}

func TestEventRecord_MarkProcessed(t *testing.T) {
	record := NewEventRecord(shared.UserID("u1"), shared.GuildID("g1"), "discord.message_sent", json.RawMessage(`{}`))
	record.MarkProcessed()
	assert.True(t, record.Processed)
}
