// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of domain event.
type EventType string

const (
	// Catalog events
	EventCategoryCreated    EventType = "catalog.category_created"
	EventCategoryUpdated    EventType = "catalog.category_updated"
	EventCategoryDeleted    EventType = "catalog.category_deleted"
	EventAchievementCreated EventType = "catalog.achievement_created"
	EventAchievementUpdated EventType = "catalog.achievement_updated"
	EventAchievementDeleted EventType = "catalog.achievement_deleted"

	// Ingestion events
	EventActionRecorded EventType = "ingestion.action_recorded"
	EventEventArchived  EventType = "ingestion.event_archived"
	EventEventReplayed  EventType = "ingestion.event_replayed"

	// Progress events
	EventProgressUpdated  EventType = "progress.updated"
	EventThresholdCrossed EventType = "progress.threshold_crossed"
	EventProgressReset    EventType = "progress.reset"

	// Award events
	EventAchievementAwarded EventType = "award.achievement_awarded"
	EventAwardRevoked       EventType = "award.revoked"
	EventAwardDuplicate     EventType = "award.duplicate_suppressed"

	// Notification events
	EventNotificationSent      EventType = "notification.sent"
	EventNotificationFailed    EventType = "notification.failed"
	EventNotificationThrottled EventType = "notification.throttled"

	// System events
	EventSyncCompleted      EventType = "system.sync_completed"
	EventEngineBackpressure EventType = "system.engine_backpressure"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Catalog Events
// ═══════════════════════════════════════════════════════════════════════════

// CategoryCreatedEvent is emitted when a new achievement category is created.
type CategoryCreatedEvent struct {
	BaseEvent
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	ParentID   string `json:"parent_id,omitempty"`
	Level      int    `json:"level"`
}

// Payload implements Event interface.
func (e CategoryCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"category_id": e.CategoryID,
		"name":        e.Name,
		"parent_id":   e.ParentID,
		"level":       e.Level,
	}
}

// NewCategoryCreatedEvent creates a new CategoryCreatedEvent.
func NewCategoryCreatedEvent(categoryID, name, parentID string, level int) CategoryCreatedEvent {
	return CategoryCreatedEvent{
		BaseEvent:  NewBaseEvent(EventCategoryCreated, categoryID),
		CategoryID: categoryID,
		Name:       name,
		ParentID:   parentID,
		Level:      level,
	}
}

// AchievementCreatedEvent is emitted when a new achievement is added to the catalog.
type AchievementCreatedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	CategoryID    string `json:"category_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Points        int    `json:"points"`
	IsHidden      bool   `json:"is_hidden"`
}

// Payload implements Event interface.
func (e AchievementCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"category_id":    e.CategoryID,
		"name":           e.Name,
		"type":           e.Type,
		"points":         e.Points,
		"is_hidden":      e.IsHidden,
	}
}

// NewAchievementCreatedEvent creates a new AchievementCreatedEvent.
func NewAchievementCreatedEvent(achievementID, categoryID, name, achType string, points int, hidden bool) AchievementCreatedEvent {
	return AchievementCreatedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementCreated, achievementID),
		AchievementID: achievementID,
		CategoryID:    categoryID,
		Name:          name,
		Type:          achType,
		Points:        points,
		IsHidden:      hidden,
	}
}

// AchievementDeactivatedEvent is emitted when an achievement is deactivated rather
// than hard-deleted, preserving existing user progress and award history.
type AchievementDeactivatedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Reason        string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e AchievementDeactivatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"reason":         e.Reason,
	}
}

// NewAchievementDeactivatedEvent creates a new AchievementDeactivatedEvent.
func NewAchievementDeactivatedEvent(achievementID, reason string) AchievementDeactivatedEvent {
	return AchievementDeactivatedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementDeleted, achievementID),
		AchievementID: achievementID,
		Reason:        reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ingestion Events
// ═══════════════════════════════════════════════════════════════════════════

// ActionRecordedEvent is emitted when a raw user action has been persisted to
// the event store and is ready for trigger evaluation.
type ActionRecordedEvent struct {
	BaseEvent
	EventRecordID string                 `json:"event_record_id"`
	UserID        string                 `json:"user_id"`
	GuildID       string                 `json:"guild_id"`
	ActionType    string                 `json:"action_type"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// Payload implements Event interface.
func (e ActionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_record_id": e.EventRecordID,
		"user_id":         e.UserID,
		"guild_id":        e.GuildID,
		"action_type":     e.ActionType,
		"correlation_id":  e.CorrelationID,
		"data":            e.Data,
	}
}

// NewActionRecordedEvent creates a new ActionRecordedEvent.
func NewActionRecordedEvent(recordID, userID, guildID, actionType string, data map[string]interface{}) ActionRecordedEvent {
	return ActionRecordedEvent{
		BaseEvent:     NewBaseEvent(EventActionRecorded, recordID),
		EventRecordID: recordID,
		UserID:        userID,
		GuildID:       guildID,
		ActionType:    actionType,
		Data:          data,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressUpdatedEvent is emitted whenever an achievement's tracked value
// changes for a user, whether or not it crosses the award threshold.
type ProgressUpdatedEvent struct {
	BaseEvent
	UserID        string  `json:"user_id"`
	AchievementID string  `json:"achievement_id"`
	Previous      float64 `json:"previous"`
	Current       float64 `json:"current"`
	Target        float64 `json:"target"`
}

// Payload implements Event interface.
func (e ProgressUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"previous":       e.Previous,
		"current":        e.Current,
		"target":         e.Target,
	}
}

// NewProgressUpdatedEvent creates a new ProgressUpdatedEvent.
func NewProgressUpdatedEvent(userID, achievementID string, previous, current, target float64) ProgressUpdatedEvent {
	return ProgressUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventProgressUpdated, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Previous:      previous,
		Current:       current,
		Target:        target,
	}
}

// CrossedThreshold reports whether this update pushed the tracked value from
// below target to at-or-above target.
func (e ProgressUpdatedEvent) CrossedThreshold() bool {
	return e.Previous < e.Target && e.Current >= e.Target
}

// ═══════════════════════════════════════════════════════════════════════════
// Award Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementAwardedEvent is emitted when a user is granted an achievement.
type AchievementAwardedEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	GuildID       string    `json:"guild_id"`
	AchievementID string    `json:"achievement_id"`
	Points        int       `json:"points"`
	AwardedAt     time.Time `json:"awarded_at"`
	TriggerSource string    `json:"trigger_source"` // e.g. "live", "replay", "manual"
}

// Payload implements Event interface.
func (e AchievementAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"guild_id":       e.GuildID,
		"achievement_id": e.AchievementID,
		"points":         e.Points,
		"awarded_at":     e.AwardedAt.Format(time.RFC3339),
		"trigger_source": e.TriggerSource,
	}
}

// NewAchievementAwardedEvent creates a new AchievementAwardedEvent.
func NewAchievementAwardedEvent(userID, guildID, achievementID string, points int, source string) AchievementAwardedEvent {
	return AchievementAwardedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementAwarded, userID),
		UserID:        userID,
		GuildID:       guildID,
		AchievementID: achievementID,
		Points:        points,
		AwardedAt:     time.Now(),
		TriggerSource: source,
	}
}

// AwardDuplicateSuppressedEvent is emitted when an award attempt is rejected
// because the user already holds the achievement; useful for observability
// without treating the attempt as an error.
type AwardDuplicateSuppressedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
}

// Payload implements Event interface.
func (e AwardDuplicateSuppressedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
	}
}

// NewAwardDuplicateSuppressedEvent creates a new AwardDuplicateSuppressedEvent.
func NewAwardDuplicateSuppressedEvent(userID, achievementID string) AwardDuplicateSuppressedEvent {
	return AwardDuplicateSuppressedEvent{
		BaseEvent:     NewBaseEvent(EventAwardDuplicate, userID),
		UserID:        userID,
		AchievementID: achievementID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification Events
// ═══════════════════════════════════════════════════════════════════════════

// NotificationSentEvent is emitted when an award notification is successfully
// delivered through a channel (DM, guild announcement, ...).
type NotificationSentEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Channel       string `json:"channel"`
}

// Payload implements Event interface.
func (e NotificationSentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"channel":        e.Channel,
	}
}

// NewNotificationSentEvent creates a new NotificationSentEvent.
func NewNotificationSentEvent(userID, achievementID, channel string) NotificationSentEvent {
	return NotificationSentEvent{
		BaseEvent:     NewBaseEvent(EventNotificationSent, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Channel:       channel,
	}
}

// NotificationFailedEvent is emitted when delivery to a channel exhausts its
// retry budget.
type NotificationFailedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Channel       string `json:"channel"`
	Reason        string `json:"reason"`
}

// Payload implements Event interface.
func (e NotificationFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"channel":        e.Channel,
		"reason":         e.Reason,
	}
}

// NewNotificationFailedEvent creates a new NotificationFailedEvent.
func NewNotificationFailedEvent(userID, achievementID, channel, reason string) NotificationFailedEvent {
	return NotificationFailedEvent{
		BaseEvent:     NewBaseEvent(EventNotificationFailed, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Channel:       channel,
		Reason:        reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// EngineBackpressureEvent is emitted when the trigger engine's bounded queue
// is full and the caller is about to block or reject.
type EngineBackpressureEvent struct {
	BaseEvent
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`
}

// Payload implements Event interface.
func (e EngineBackpressureEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"queue_depth":    e.QueueDepth,
		"queue_capacity": e.QueueCapacity,
	}
}

// NewEngineBackpressureEvent creates a new EngineBackpressureEvent.
func NewEngineBackpressureEvent(depth, capacity int) EngineBackpressureEvent {
	return EngineBackpressureEvent{
		BaseEvent:     NewBaseEvent(EventEngineBackpressure, "engine"),
		QueueDepth:    depth,
		QueueCapacity: capacity,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
