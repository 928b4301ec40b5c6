// Package notification contains the domain model for achievement award
// notifications. Notifications are the player-facing half of the award
// protocol: once an achievement is granted, this package decides what to
// say, where to say it, and tracks whether it actually got said.
package notification

import (
	"errors"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationID uniquely identifies a notification.
type NotificationID string

// IsValid checks that the ID is not empty.
func (id NotificationID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the ID.
func (id NotificationID) String() string {
	return string(id)
}

// RecipientID identifies the Discord user a notification is addressed to.
type RecipientID string

// IsValid checks that the recipient ID is not empty.
func (id RecipientID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the recipient ID.
func (id RecipientID) String() string {
	return string(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// NotificationType identifies the kind of notification.
type NotificationType string

const (
	// NotificationTypeAchievementAwarded fires when a user is granted an
	// achievement for the first time.
	NotificationTypeAchievementAwarded NotificationType = "achievement_awarded"

	// NotificationTypeProgressMilestone fires on a configurable progress
	// checkpoint (e.g. 50%) before the achievement itself is unlocked.
	NotificationTypeProgressMilestone NotificationType = "progress_milestone"

	// NotificationTypeCategoryCompleted fires when every achievement in a
	// category has been earned by a user.
	NotificationTypeCategoryCompleted NotificationType = "category_completed"

	// NotificationTypeDailyDigest is a daily summary of awards across a guild.
	NotificationTypeDailyDigest NotificationType = "daily_digest"

	// NotificationTypeSystemAlert carries operational notices (e.g. catalog
	// maintenance) rather than award information.
	NotificationTypeSystemAlert NotificationType = "system_alert"
)

// IsValid checks that the notification type is recognized.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeAchievementAwarded,
		NotificationTypeProgressMilestone,
		NotificationTypeCategoryCompleted,
		NotificationTypeDailyDigest,
		NotificationTypeSystemAlert:
		return true
	default:
		return false
	}
}

// DefaultPriority returns the default priority for this notification type.
func (t NotificationType) DefaultPriority() Priority {
	switch t {
	case NotificationTypeAchievementAwarded, NotificationTypeCategoryCompleted:
		return PriorityHigh
	case NotificationTypeProgressMilestone:
		return PriorityNormal
	case NotificationTypeDailyDigest:
		return PriorityLow
	case NotificationTypeSystemAlert:
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// Emoji returns a display emoji for the notification type.
func (t NotificationType) Emoji() string {
	switch t {
	case NotificationTypeAchievementAwarded:
		return "🏅"
	case NotificationTypeProgressMilestone:
		return "📈"
	case NotificationTypeCategoryCompleted:
		return "🏆"
	case NotificationTypeDailyDigest:
		return "📊"
	case NotificationTypeSystemAlert:
		return "⚙️"
	default:
		return "📬"
	}
}

// String returns the string representation of the type.
func (t NotificationType) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRIORITY
// ══════════════════════════════════════════════════════════════════════════════

// Priority determines how aggressively a notification should be delivered.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// IsValid checks that the priority is within range.
func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ShouldSendImmediately reports whether the notification bypasses batching.
func (p Priority) ShouldSendImmediately() bool {
	return p >= PriorityHigh
}

// CanBeBatched reports whether the notification can be grouped with others.
func (p Priority) CanBeBatched() bool {
	return p == PriorityLow
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION STATUS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationStatus tracks a notification's delivery lifecycle.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusQueued    NotificationStatus = "queued"
	StatusSending   NotificationStatus = "sending"
	StatusDelivered NotificationStatus = "delivered"
	StatusFailed    NotificationStatus = "failed"
	StatusCancelled NotificationStatus = "cancelled"
	StatusExpired   NotificationStatus = "expired"
	StatusSkipped   NotificationStatus = "skipped"
)

// IsValid checks that the status is recognized.
func (s NotificationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSending,
		StatusDelivered, StatusFailed, StatusCancelled,
		StatusExpired, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsFinal reports whether this is a terminal status.
func (s NotificationStatus) IsFinal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCancelled, StatusExpired, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the notification was delivered.
func (s NotificationStatus) IsSuccess() bool {
	return s == StatusDelivered
}

// CanRetry reports whether a failed notification is eligible for resend.
func (s NotificationStatus) CanRetry() bool {
	return s == StatusFailed
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Notification represents an award notification addressed to a Discord user.
type Notification struct {
	ID          NotificationID
	Type        NotificationType
	RecipientID RecipientID
	GuildID     string
	Priority    Priority
	Status      NotificationStatus

	Title   string
	Message string
	Data    NotificationData

	ScheduledAt *time.Time
	SentAt      *time.Time
	DeliveredAt *time.Time
	ExpiresAt   *time.Time

	RetryCount int
	MaxRetries int
	LastError  string

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationData holds the structured payload used to render a message
// template for a given notification type.
type NotificationData struct {
	AchievementID   string `json:"achievement_id,omitempty"`
	AchievementName string `json:"achievement_name,omitempty"`
	AchievementDesc string `json:"achievement_desc,omitempty"`
	Points          int    `json:"points,omitempty"`
	BadgeURL        string `json:"badge_url,omitempty"`

	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`

	ProgressCurrent float64 `json:"progress_current,omitempty"`
	ProgressTarget  float64 `json:"progress_target,omitempty"`
	ProgressPercent int     `json:"progress_percent,omitempty"`

	AwardsInPeriod int        `json:"awards_in_period,omitempty"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewNotificationParams holds the parameters to create a notification.
type NewNotificationParams struct {
	ID          NotificationID
	Type        NotificationType
	RecipientID RecipientID
	GuildID     string
	Message     string
	Title       string
	Data        NotificationData
	Priority    *Priority
	ScheduledAt *time.Time
	ExpiresAt   *time.Time
	MaxRetries  int
}

// NewNotification creates a new notification with validation.
func NewNotification(params NewNotificationParams) (*Notification, error) {
	if !params.ID.IsValid() {
		return nil, ErrInvalidNotificationID
	}
	if !params.Type.IsValid() {
		return nil, ErrInvalidNotificationType
	}
	if !params.RecipientID.IsValid() {
		return nil, ErrInvalidRecipientID
	}
	if params.Message == "" {
		return nil, ErrEmptyMessage
	}

	priority := params.Type.DefaultPriority()
	if params.Priority != nil && params.Priority.IsValid() {
		priority = *params.Priority
	}

	maxRetries := 3
	if params.MaxRetries > 0 {
		maxRetries = params.MaxRetries
	}

	now := time.Now().UTC()

	return &Notification{
		ID:          params.ID,
		Type:        params.Type,
		RecipientID: params.RecipientID,
		GuildID:     params.GuildID,
		Priority:    priority,
		Status:      StatusPending,
		Title:       params.Title,
		Message:     params.Message,
		Data:        params.Data,
		ScheduledAt: params.ScheduledAt,
		ExpiresAt:   params.ExpiresAt,
		RetryCount:  0,
		MaxRetries:  maxRetries,
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// MarkQueued transitions the notification into the queued state.
func (n *Notification) MarkQueued() error {
	if n.Status != StatusPending {
		return ErrInvalidStatusTransition
	}
	n.Status = StatusQueued
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSending transitions the notification into the sending state.
func (n *Notification) MarkSending() error {
	if n.Status != StatusQueued && n.Status != StatusPending {
		return ErrInvalidStatusTransition
	}
	n.Status = StatusSending
	now := time.Now().UTC()
	n.SentAt = &now
	n.UpdatedAt = now
	return nil
}

// MarkDelivered marks the notification as successfully delivered.
func (n *Notification) MarkDelivered() error {
	if n.Status != StatusSending {
		return ErrInvalidStatusTransition
	}
	n.Status = StatusDelivered
	now := time.Now().UTC()
	n.DeliveredAt = &now
	n.UpdatedAt = now
	return nil
}

// MarkFailed marks the notification as failed, recording the error.
func (n *Notification) MarkFailed(err string) error {
	if n.Status != StatusSending {
		return ErrInvalidStatusTransition
	}
	n.Status = StatusFailed
	n.LastError = err
	n.RetryCount++
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCancelled cancels a notification that has not reached a final state.
func (n *Notification) MarkCancelled() error {
	if n.Status.IsFinal() {
		return ErrInvalidStatusTransition
	}
	n.Status = StatusCancelled
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkExpired marks the notification as expired.
func (n *Notification) MarkExpired() error {
	if n.Status.IsFinal() {
		return ErrInvalidStatusTransition
	}
	n.Status = StatusExpired
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSkipped marks the notification as intentionally skipped, e.g. because
// the recipient opted out of this notification type.
func (n *Notification) MarkSkipped(reason string) error {
	if n.Status.IsFinal() {
		return ErrInvalidStatusTransition
	}
	n.Status = StatusSkipped
	n.LastError = reason
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetForRetry prepares a failed notification for resend.
func (n *Notification) ResetForRetry() error {
	if !n.CanRetry() {
		return ErrMaxRetriesExceeded
	}
	n.Status = StatusPending
	n.SentAt = nil
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// CanRetry reports whether the notification can still be retried.
func (n *Notification) CanRetry() bool {
	return n.Status.CanRetry() && n.RetryCount < n.MaxRetries
}

// IsExpired reports whether the notification's lifetime has elapsed.
func (n *Notification) IsExpired() bool {
	if n.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*n.ExpiresAt)
}

// IsScheduled reports whether the notification is scheduled for the future.
func (n *Notification) IsScheduled() bool {
	if n.ScheduledAt == nil {
		return false
	}
	return n.ScheduledAt.After(time.Now().UTC())
}

// IsReadyToSend reports whether the notification is eligible for delivery now.
func (n *Notification) IsReadyToSend() bool {
	if n.Status != StatusPending && n.Status != StatusQueued {
		return false
	}
	if n.IsExpired() {
		return false
	}
	if n.IsScheduled() {
		return false
	}
	return true
}

// SetMetadata sets a metadata key/value pair.
func (n *Notification) SetMetadata(key, value string) {
	if n.Metadata == nil {
		n.Metadata = make(map[string]string)
	}
	n.Metadata[key] = value
	n.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the notification.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}

	clone := *n

	if n.ScheduledAt != nil {
		t := *n.ScheduledAt
		clone.ScheduledAt = &t
	}
	if n.SentAt != nil {
		t := *n.SentAt
		clone.SentAt = &t
	}
	if n.DeliveredAt != nil {
		t := *n.DeliveredAt
		clone.DeliveredAt = &t
	}
	if n.ExpiresAt != nil {
		t := *n.ExpiresAt
		clone.ExpiresAt = &t
	}

	if n.Metadata != nil {
		clone.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

// String returns a string representation suitable for logging.
func (n *Notification) String() string {
	return fmt.Sprintf(
		"Notification{ID: %s, Type: %s, Recipient: %s, Status: %s, Priority: %s}",
		n.ID, n.Type, n.RecipientID, n.Status, n.Priority,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION BATCH (for grouping low-priority notifications)
// ══════════════════════════════════════════════════════════════════════════════

// NotificationBatch groups several low-priority notifications addressed to
// the same recipient so they can be delivered as a single digest message.
type NotificationBatch struct {
	RecipientID   RecipientID
	GuildID       string
	Notifications []*Notification
	CreatedAt     time.Time
}

// NewNotificationBatch creates a new empty batch for a recipient.
func NewNotificationBatch(recipientID RecipientID, guildID string) *NotificationBatch {
	return &NotificationBatch{
		RecipientID:   recipientID,
		GuildID:       guildID,
		Notifications: make([]*Notification, 0),
		CreatedAt:     time.Now().UTC(),
	}
}

// Add appends a notification to the batch.
func (b *NotificationBatch) Add(n *Notification) error {
	if n == nil {
		return ErrNilNotification
	}
	if n.RecipientID != b.RecipientID {
		return ErrRecipientMismatch
	}
	b.Notifications = append(b.Notifications, n)
	return nil
}

// Count returns the number of notifications in the batch.
func (b *NotificationBatch) Count() int {
	return len(b.Notifications)
}

// IsEmpty reports whether the batch has no notifications.
func (b *NotificationBatch) IsEmpty() bool {
	return len(b.Notifications) == 0
}

// HighestPriority returns the highest priority among the batched notifications.
func (b *NotificationBatch) HighestPriority() Priority {
	if b.IsEmpty() {
		return PriorityLow
	}

	highest := PriorityLow
	for _, n := range b.Notifications {
		if n.Priority > highest {
			highest = n.Priority
		}
	}
	return highest
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrInvalidNotificationID   = errors.New("invalid notification id: cannot be empty")
	ErrInvalidNotificationType = errors.New("invalid notification type")
	ErrInvalidRecipientID      = errors.New("invalid recipient id: cannot be empty")
	ErrEmptyMessage            = errors.New("notification message cannot be empty")
	ErrInvalidPriority         = errors.New("invalid priority")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrMaxRetriesExceeded      = errors.New("max retries exceeded")
	ErrNotificationExpired     = errors.New("notification has expired")
	ErrNilNotification         = errors.New("notification cannot be nil")
	ErrRecipientMismatch       = errors.New("notification recipient does not match batch")
	ErrNotificationNotFound    = errors.New("notification not found")
)
