// Package events contains the domain model for the durable, append-only
// event log that the ingestion pipeline writes to before handing an event to
// the trigger engine for evaluation.
package events

import (
	"encoding/json"
	"time"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

// EventRecord is one ingested user-activity event.
type EventRecord struct {
	ID            int64
	UserID        shared.UserID
	GuildID       shared.GuildID
	EventType     string // dotted string, e.g. "discord.message_sent"
	EventData     json.RawMessage
	Timestamp     time.Time
	ChannelID     string
	Processed     bool
	CorrelationID string
}

// NewEventRecord creates a new, unprocessed event record.
func NewEventRecord(userID shared.UserID, guildID shared.GuildID, eventType string, data json.RawMessage) *EventRecord {
	return &EventRecord{
		UserID:    userID,
		GuildID:   guildID,
		EventType: eventType,
		EventData: data,
		Timestamp: time.Now().UTC(),
		Processed: false,
	}
}

// WithChannel attaches the originating channel ID.
func (e *EventRecord) WithChannel(channelID string) *EventRecord {
	e.ChannelID = channelID
	return e
}

// WithCorrelationID attaches a correlation ID for cross-system tracing.
func (e *EventRecord) WithCorrelationID(id string) *EventRecord {
	e.CorrelationID = id
	return e
}

// MarkProcessed transitions the record false→true. The repository enforces
// that this transition happens exactly once; calling it twice on an
// already-processed in-memory copy is a no-op here, the invariant is
// enforced by the storage layer's UPDATE ... WHERE processed = false.
func (e *EventRecord) MarkProcessed() {
	e.Processed = true
}

// ArchivedEventRecord mirrors EventRecord with an additional archival
// timestamp, used by archive_old_events.
type ArchivedEventRecord struct {
	EventRecord
	ArchivedAt time.Time
}
