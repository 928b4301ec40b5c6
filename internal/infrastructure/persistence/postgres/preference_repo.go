package postgres

import (
	"context"
	"time"

	"github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PreferenceRepository implements notification.PreferenceRepository for
// PostgreSQL.
type PreferenceRepository struct {
	conn *Connection
}

// NewPreferenceRepository creates a new PreferenceRepository.
func NewPreferenceRepository(conn *Connection) *PreferenceRepository {
	return &PreferenceRepository{conn: conn}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID notification.RecipientID, guildID string) (*notification.NotificationPreference, error) {
	query := `
		SELECT user_id, guild_id, dm_enabled, announcement_enabled, enabled, opt_out_categories,
		       quiet_hours_start, quiet_hours_end, updated_at
		FROM notification_preferences WHERE user_id = $1 AND guild_id = $2
	`
	var p notification.NotificationPreference
	var recipientID string
	var optOut []string

	err := r.conn.QueryRow(ctx, query, string(userID), guildID).Scan(
		&recipientID, &p.GuildID, &p.DMEnabled, &p.AnnouncementEnabled, &p.Enabled, &optOut, &p.QuietHoursStart, &p.QuietHoursEnd, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("notification", "Get", shared.ErrNotFound, "preference not found")
		}
		return nil, shared.WrapError("notification", "Get", shared.ErrStorage, "reading preference", err)
	}

	p.UserID = notification.RecipientID(recipientID)
	p.OptOutCategories = make(map[string]struct{}, len(optOut))
	for _, categoryID := range optOut {
		p.OptOutCategories[categoryID] = struct{}{}
	}
	return &p, nil
}

func (r *PreferenceRepository) Save(ctx context.Context, pref *notification.NotificationPreference) error {
	optOut := make([]string, 0, len(pref.OptOutCategories))
	for categoryID := range pref.OptOutCategories {
		optOut = append(optOut, categoryID)
	}

	query := `
		INSERT INTO notification_preferences
			(user_id, guild_id, dm_enabled, announcement_enabled, enabled, opt_out_categories, quiet_hours_start, quiet_hours_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			dm_enabled = EXCLUDED.dm_enabled,
			announcement_enabled = EXCLUDED.announcement_enabled,
			enabled = EXCLUDED.enabled,
			opt_out_categories = EXCLUDED.opt_out_categories,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.conn.Exec(ctx, query,
		string(pref.UserID), pref.GuildID, pref.DMEnabled, pref.AnnouncementEnabled, pref.Enabled, optOut,
		pref.QuietHoursStart, pref.QuietHoursEnd, pref.UpdatedAt,
	)
	if err != nil {
		return shared.WrapError("notification", "Save", shared.ErrStorage, "saving preference", err)
	}
	return nil
}

func (r *PreferenceRepository) Delete(ctx context.Context, userID notification.RecipientID, guildID string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM notification_preferences WHERE user_id = $1 AND guild_id = $2`, string(userID), guildID)
	if err != nil {
		return shared.WrapError("notification", "Delete", shared.ErrStorage, "deleting preference", err)
	}
	return nil
}

func (r *PreferenceRepository) ListByGuild(ctx context.Context, guildID string) ([]*notification.NotificationPreference, error) {
	query := `
		SELECT user_id, guild_id, dm_enabled, announcement_enabled, enabled, opt_out_categories,
		       quiet_hours_start, quiet_hours_end, updated_at
		FROM notification_preferences WHERE guild_id = $1
	`
	rows, err := r.conn.Query(ctx, query, guildID)
	if err != nil {
		return nil, shared.WrapError("notification", "ListByGuild", shared.ErrStorage, "listing guild preferences", err)
	}
	defer rows.Close()

	var prefs []*notification.NotificationPreference
	for rows.Next() {
		var p notification.NotificationPreference
		var recipientID string
		var optOut []string

		if err := rows.Scan(&recipientID, &p.GuildID, &p.DMEnabled, &p.AnnouncementEnabled, &p.Enabled, &optOut, &p.QuietHoursStart, &p.QuietHoursEnd, &p.UpdatedAt); err != nil {
			return nil, shared.WrapError("notification", "ListByGuild", shared.ErrStorage, "scanning guild preference", err)
		}
		p.UserID = notification.RecipientID(recipientID)
		p.OptOutCategories = make(map[string]struct{}, len(optOut))
		for _, categoryID := range optOut {
			p.OptOutCategories[categoryID] = struct{}{}
		}
		prefs = append(prefs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("notification", "ListByGuild", shared.ErrStorage, "iterating guild preferences", err)
	}
	return prefs, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GLOBAL SETTINGS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GlobalSettingsRepository implements notification.GlobalSettingsRepository
// for PostgreSQL.
type GlobalSettingsRepository struct {
	conn *Connection
}

// NewGlobalSettingsRepository creates a new GlobalSettingsRepository.
func NewGlobalSettingsRepository(conn *Connection) *GlobalSettingsRepository {
	return &GlobalSettingsRepository{conn: conn}
}

func (r *GlobalSettingsRepository) Get(ctx context.Context, guildID string) (*notification.GlobalNotificationSettings, error) {
	query := `
		SELECT guild_id, announcement_channel_id, announce_awards, default_channel,
		       daily_digest_enabled, daily_digest_hour, updated_at
		FROM global_notification_settings WHERE guild_id = $1
	`
	var s notification.GlobalNotificationSettings
	var defaultChannel string

	err := r.conn.QueryRow(ctx, query, guildID).Scan(
		&s.GuildID, &s.AnnouncementChannelID, &s.AnnounceAwards, &defaultChannel, &s.DailyDigestEnabled, &s.DailyDigestHour, &s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("notification", "Get", shared.ErrNotFound, "guild settings not found")
		}
		return nil, shared.WrapError("notification", "Get", shared.ErrStorage, "reading guild settings", err)
	}
	s.DefaultChannel = notification.ChannelType(defaultChannel)
	return &s, nil
}

func (r *GlobalSettingsRepository) Save(ctx context.Context, settings *notification.GlobalNotificationSettings) error {
	query := `
		INSERT INTO global_notification_settings
			(guild_id, announcement_channel_id, announce_awards, default_channel, daily_digest_enabled, daily_digest_hour, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (guild_id) DO UPDATE SET
			announcement_channel_id = EXCLUDED.announcement_channel_id,
			announce_awards = EXCLUDED.announce_awards,
			default_channel = EXCLUDED.default_channel,
			daily_digest_enabled = EXCLUDED.daily_digest_enabled,
			daily_digest_hour = EXCLUDED.daily_digest_hour,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.conn.Exec(ctx, query,
		settings.GuildID, settings.AnnouncementChannelID, settings.AnnounceAwards, string(settings.DefaultChannel),
		settings.DailyDigestEnabled, settings.DailyDigestHour, settings.UpdatedAt,
	)
	if err != nil {
		return shared.WrapError("notification", "Save", shared.ErrStorage, "saving guild settings", err)
	}
	return nil
}

func (r *GlobalSettingsRepository) ListDigestEnabled(ctx context.Context) ([]*notification.GlobalNotificationSettings, error) {
	query := `
		SELECT guild_id, announcement_channel_id, announce_awards, default_channel,
		       daily_digest_enabled, daily_digest_hour, updated_at
		FROM global_notification_settings WHERE daily_digest_enabled = true
	`
	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, shared.WrapError("notification", "ListDigestEnabled", shared.ErrStorage, "listing digest guilds", err)
	}
	defer rows.Close()

	var all []*notification.GlobalNotificationSettings
	for rows.Next() {
		var s notification.GlobalNotificationSettings
		var defaultChannel string
		if err := rows.Scan(&s.GuildID, &s.AnnouncementChannelID, &s.AnnounceAwards, &defaultChannel, &s.DailyDigestEnabled, &s.DailyDigestHour, &s.UpdatedAt); err != nil {
			return nil, shared.WrapError("notification", "ListDigestEnabled", shared.ErrStorage, "scanning digest guild", err)
		}
		s.DefaultChannel = notification.ChannelType(defaultChannel)
		all = append(all, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("notification", "ListDigestEnabled", shared.ErrStorage, "iterating digest guilds", err)
	}
	return all, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY ATTEMPT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryAttemptRepository implements notification.DeliveryAttemptRepository
// for PostgreSQL: the delivery audit trail plus a per-recipient count of
// recent attempts. The notification router does not use it; its rate
// limiter keeps in-process state.
type DeliveryAttemptRepository struct {
	conn *Connection
}

// NewDeliveryAttemptRepository creates a new DeliveryAttemptRepository.
func NewDeliveryAttemptRepository(conn *Connection) *DeliveryAttemptRepository {
	return &DeliveryAttemptRepository{conn: conn}
}

func (r *DeliveryAttemptRepository) Record(ctx context.Context, attempt *notification.DeliveryAttempt) error {
	query := `
		INSERT INTO notification_delivery_attempts
			(id, notification_id, recipient_id, channel, success, error_code, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.conn.Exec(ctx, query,
		attempt.ID, string(attempt.NotificationID), string(attempt.RecipientID), string(attempt.Channel),
		attempt.Success, attempt.ErrorCode, attempt.AttemptedAt,
	)
	if err != nil {
		return shared.WrapError("notification", "Record", shared.ErrStorage, "recording delivery attempt", err)
	}
	return nil
}

func (r *DeliveryAttemptRepository) CountRecent(ctx context.Context, recipientID notification.RecipientID, since time.Time) (int, error) {
	var count int
	query := `SELECT count(*) FROM notification_delivery_attempts WHERE recipient_id = $1 AND attempted_at >= $2`
	if err := r.conn.QueryRow(ctx, query, string(recipientID), since).Scan(&count); err != nil {
		return 0, shared.WrapError("notification", "CountRecent", shared.ErrStorage, "counting delivery attempts", err)
	}
	return count, nil
}

func (r *DeliveryAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM notification_delivery_attempts WHERE attempted_at < $1`, before)
	if err != nil {
		return 0, shared.WrapError("notification", "DeleteOlderThan", shared.ErrStorage, "deleting old delivery attempts", err)
	}
	return tag.RowsAffected(), nil
}
