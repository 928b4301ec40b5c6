package notification

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION PREFERENCE
// ══════════════════════════════════════════════════════════════════════════════

// NotificationPreference records one user's delivery choices for a guild:
// which channel to use and which categories of award to be notified about.
// An entry in OptOutCategories covers that exact category ID only; its
// subcategories are not included.
type NotificationPreference struct {
	UserID  RecipientID
	GuildID string

	// DMEnabled and AnnouncementEnabled are independent: an award can reach
	// a user through both sinks at once, through neither, or through either
	// one alone. AnnouncementEnabled only has any effect when the guild's
	// GlobalNotificationSettings.AnnounceAwards is also on.
	DMEnabled           bool
	AnnouncementEnabled bool

	Enabled bool

	// OptOutCategories lists achievement category IDs the user does not want
	// award notifications for; an empty set means "notify for everything".
	OptOutCategories map[string]struct{}

	QuietHoursStart int // hour of day, 0-23, local to the user's guild, -1 = disabled
	QuietHoursEnd   int // hour of day, 0-23

	UpdatedAt time.Time
}

// NewDefaultPreference returns the preference a user starts with before ever
// configuring anything: both sinks enabled, every category enabled, no quiet
// hours.
func NewDefaultPreference(userID RecipientID, guildID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:              userID,
		GuildID:             guildID,
		DMEnabled:           true,
		AnnouncementEnabled: true,
		Enabled:             true,
		OptOutCategories:    make(map[string]struct{}),
		QuietHoursStart:     -1,
		QuietHoursEnd:       -1,
		UpdatedAt:           time.Now().UTC(),
	}
}

// AllowsCategory reports whether the user wants notifications for the given
// achievement category.
func (p *NotificationPreference) AllowsCategory(categoryID string) bool {
	if !p.Enabled {
		return false
	}
	_, optedOut := p.OptOutCategories[categoryID]
	return !optedOut
}

// InQuietHours reports whether the given hour-of-day (0-23) falls within the
// user's configured quiet window, which may wrap past midnight.
func (p *NotificationPreference) InQuietHours(hour int) bool {
	if p.QuietHoursStart < 0 || p.QuietHoursEnd < 0 {
		return false
	}
	if p.QuietHoursStart == p.QuietHoursEnd {
		return false
	}
	if p.QuietHoursStart < p.QuietHoursEnd {
		return hour >= p.QuietHoursStart && hour < p.QuietHoursEnd
	}
	// Wraps past midnight, e.g. 22 -> 6.
	return hour >= p.QuietHoursStart || hour < p.QuietHoursEnd
}

// OptOut adds a category to the opt-out set.
func (p *NotificationPreference) OptOut(categoryID string) {
	if p.OptOutCategories == nil {
		p.OptOutCategories = make(map[string]struct{})
	}
	p.OptOutCategories[categoryID] = struct{}{}
	p.UpdatedAt = time.Now().UTC()
}

// OptIn removes a category from the opt-out set.
func (p *NotificationPreference) OptIn(categoryID string) {
	delete(p.OptOutCategories, categoryID)
	p.UpdatedAt = time.Now().UTC()
}

// PreferenceRepository persists per-user notification preferences.
type PreferenceRepository interface {
	Get(ctx context.Context, userID RecipientID, guildID string) (*NotificationPreference, error)
	Save(ctx context.Context, pref *NotificationPreference) error
	Delete(ctx context.Context, userID RecipientID, guildID string) error

	// ListByGuild returns every preference row recorded for a guild, used by
	// the daily digest job to enumerate users known to that guild without
	// requiring a separate membership roster.
	ListByGuild(ctx context.Context, guildID string) ([]*NotificationPreference, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// GLOBAL NOTIFICATION SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// GlobalNotificationSettings holds guild-wide defaults that apply when a user
// has no explicit preference, plus operational toggles an admin controls.
type GlobalNotificationSettings struct {
	GuildID string

	AnnouncementChannelID string // Discord channel ID for public award posts
	AnnounceAwards        bool   // whether awards are posted publicly at all
	DefaultChannel        ChannelType

	DailyDigestEnabled bool
	DailyDigestHour    int // hour of day (0-23) the digest is sent

	UpdatedAt time.Time
}

// NewDefaultGlobalSettings returns the settings a newly onboarded guild starts with.
func NewDefaultGlobalSettings(guildID string) *GlobalNotificationSettings {
	return &GlobalNotificationSettings{
		GuildID:            guildID,
		AnnounceAwards:     false,
		DefaultChannel:     ChannelTypeDirectMessage,
		DailyDigestEnabled: false,
		DailyDigestHour:    9,
		UpdatedAt:          time.Now().UTC(),
	}
}

// GlobalSettingsRepository persists per-guild notification configuration.
type GlobalSettingsRepository interface {
	Get(ctx context.Context, guildID string) (*GlobalNotificationSettings, error)
	Save(ctx context.Context, settings *GlobalNotificationSettings) error

	// ListDigestEnabled returns the settings row for every guild that has
	// opted into the daily digest, for the digest job to sweep.
	ListDigestEnabled(ctx context.Context) ([]*GlobalNotificationSettings, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY ATTEMPT RECORD (for rate limiting and auditing)
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryAttempt records one delivery attempt for auditing and for the
// per-recipient rate limiter to reason about recent send volume.
type DeliveryAttempt struct {
	ID             string
	NotificationID NotificationID
	RecipientID    RecipientID
	Channel        ChannelType
	Success        bool
	ErrorCode      string
	AttemptedAt    time.Time
}

// DeliveryAttemptRepository persists delivery attempts.
type DeliveryAttemptRepository interface {
	Record(ctx context.Context, attempt *DeliveryAttempt) error
	CountRecent(ctx context.Context, recipientID RecipientID, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

var (
	ErrPreferenceNotFound = errors.New("notification preference not found")
	ErrSettingsNotFound   = errors.New("guild notification settings not found")
)
