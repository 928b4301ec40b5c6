// Package notifier implements the notification router of §4.H: it
// subscribes to AwardEvent, resolves per-user/per-guild preferences and
// quiet hours, rate-limits each sink (per recipient for DMs, per guild for
// announcements), and drives notifications
// through PENDING/SENT/FAILED delivery states with retry.
package notifier

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"context"

	"github.com/google/uuid"

	"github.com/achievement-engine/engine/internal/application/award"
	notificationdomain "github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/internal/domain/shared"
	"github.com/achievement-engine/engine/pkg/timeutil"
)

// RetryPolicy configures the backoff applied to transient delivery failures.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns sensible retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialBackoff: 2 * time.Second, Multiplier: 2.0}
}

// Config configures a Router.
type Config struct {
	RateLimitWindow time.Duration
	Retry           RetryPolicy
	Logger          *slog.Logger
}

// DefaultConfig returns sensible router defaults.
func DefaultConfig() Config {
	return Config{RateLimitWindow: 60 * time.Second, Retry: DefaultRetryPolicy()}
}

// Router consumes award.AwardEvent and drives notification delivery.
type Router struct {
	preferences   notificationdomain.PreferenceRepository
	settings      notificationdomain.GlobalSettingsRepository
	notifications notificationdomain.NotificationRepository
	channels      map[notificationdomain.ChannelType]notificationdomain.NotificationChannel
	awards        *award.Service

	cfg    Config
	logger *slog.Logger

	rateMu      sync.Mutex
	lastEmitted map[string]time.Time // keyed by "dm:"+recipientID or "announcement:"+guildID

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRouter wires a Router. Call Start to begin consuming award events.
func NewRouter(
	preferences notificationdomain.PreferenceRepository,
	settings notificationdomain.GlobalSettingsRepository,
	notifications notificationdomain.NotificationRepository,
	channels map[notificationdomain.ChannelType]notificationdomain.NotificationChannel,
	awards *award.Service,
	cfg Config,
) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultConfig().RateLimitWindow
	}
	return &Router{
		preferences:   preferences,
		settings:      settings,
		notifications: notifications,
		channels:      channels,
		awards:        awards,
		cfg:           cfg,
		logger:        cfg.Logger,
		lastEmitted:   make(map[string]time.Time),
	}
}

// Start begins consuming award.AwardEvent from the award service until Stop
// is called.
func (r *Router) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case event, ok := <-r.awards.Events():
				if !ok {
					return
				}
				r.handleAward(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the consumer loop and waits for it to exit.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Router) handleAward(ctx context.Context, event award.AwardEvent) {
	userID := event.UserAchievement.UserID
	guildID := event.GuildID

	resolved, err := r.resolve(ctx, userID, guildID)
	if err != nil {
		r.logger.Error("failed resolving notification preferences", "user_id", userID, "error", err)
		return
	}
	if !resolved.preference.Enabled {
		return
	}

	notification, err := notificationdomain.NewNotification(notificationdomain.NewNotificationParams{
		ID:          notificationdomain.NotificationID(uuid.NewString()),
		Type:        notificationdomain.NotificationTypeAchievementAwarded,
		RecipientID: notificationdomain.RecipientID(userID),
		GuildID:     string(guildID),
		Title:       "Achievement unlocked",
		Message:     fmt.Sprintf("You earned %q", event.Achievement.Name),
		Data: notificationdomain.NotificationData{
			AchievementID:   event.Achievement.ID.String(),
			AchievementName: event.Achievement.Name,
			Points:          int(event.Achievement.Points),
		},
	})
	if err != nil {
		r.logger.Error("failed constructing award notification", "user_id", userID, "error", err)
		return
	}

	if err := r.notifications.Save(ctx, notification); err != nil {
		r.logger.Error("failed saving pending notification", "user_id", userID, "error", err)
		return
	}

	r.deliver(ctx, notification, resolved, event)
}

type resolvedPreference struct {
	preference *notificationdomain.NotificationPreference
	settings   *notificationdomain.GlobalNotificationSettings
}

// announcementTarget is implemented by channels that need a per-guild
// destination configured before they can post (the Discord guild
// announcement channel). Router type-asserts for it rather than depending on
// the discord package directly, so any NotificationChannel implementation
// can opt in.
type announcementTarget interface {
	SetAnnouncementChannel(guildID, channelID string)
}

// resolve merges per-user preferences with guild-wide defaults per §4.H: a
// user with no explicit preference row gets DM-on, guild-default
// announcement behavior.
func (r *Router) resolve(ctx context.Context, userID shared.UserID, guildID shared.GuildID) (resolvedPreference, error) {
	pref, err := r.preferences.Get(ctx, notificationdomain.RecipientID(userID), string(guildID))
	if err != nil {
		if !shared.IsNotFound(err) {
			return resolvedPreference{}, err
		}
		pref = notificationdomain.NewDefaultPreference(notificationdomain.RecipientID(userID), string(guildID))
	}

	settings, err := r.settings.Get(ctx, string(guildID))
	if err != nil {
		if !shared.IsNotFound(err) {
			return resolvedPreference{}, err
		}
		settings = notificationdomain.NewDefaultGlobalSettings(string(guildID))
	}

	return resolvedPreference{preference: pref, settings: settings}, nil
}

// deliver drives both notification sinks independently: a DM to the
// recipient and a public guild announcement post. Either, both, or neither
// may fire depending on the user's preference and the guild's settings;
// firing one is never conditioned on the other.
func (r *Router) deliver(ctx context.Context, notification *notificationdomain.Notification, resolved resolvedPreference, event award.AwardEvent) {
	if !notification.Priority.ShouldSendImmediately() {
		now := timeutil.Now()
		if resolved.preference.InQuietHours(now.Hour()) {
			nextSend := timeutil.NextHour(now, resolved.preference.QuietHoursEnd)
			notification.ScheduledAt = &nextSend
			if err := notification.MarkQueued(); err != nil {
				r.logger.Error("invalid notification state transition", "notification_id", notification.ID, "error", err)
				return
			}
			_ = r.notifications.UpdateStatus(ctx, notification.ID, notification.Status)
			r.logger.Info("notification deferred to end of quiet hours",
				"notification_id", notification.ID, "recipient_id", notification.RecipientID, "scheduled_at", nextSend)
			return
		}
	}

	if resolved.preference.DMEnabled {
		r.deliverDM(ctx, notification, event)
	}

	if resolved.preference.AnnouncementEnabled && resolved.settings.AnnounceAwards && resolved.settings.AnnouncementChannelID != "" {
		r.deliverAnnouncement(ctx, notification, resolved.settings)
	}
}

// deliverDM sends notification to the recipient's DM sink, rate-limited
// per-recipient so one user's DM never consumes another user's slot in the
// same guild, and persists the notification's delivery state throughout.
func (r *Router) deliverDM(ctx context.Context, notification *notificationdomain.Notification, event award.AwardEvent) {
	sinkKey := "dm:" + string(notification.RecipientID)
	if !r.allowSend(sinkKey) {
		r.logger.Info("dm notification deferred by rate limit", "recipient_id", notification.RecipientID)
		_ = notification.MarkSkipped("rate limited")
		_ = r.notifications.UpdateStatus(ctx, notification.ID, notification.Status)
		return
	}

	channel, ok := r.channels[notificationdomain.ChannelTypeDirectMessage]
	if !ok {
		r.logger.Error("no channel registered for dm sink")
		return
	}

	opts := notificationdomain.DefaultDeliveryOptions()

	if err := notification.MarkSending(); err != nil {
		r.logger.Error("invalid notification state transition", "notification_id", notification.ID, "error", err)
		return
	}
	_ = r.notifications.UpdateStatus(ctx, notification.ID, notification.Status)

	backoff := r.cfg.Retry.InitialBackoff
	for attempt := 0; attempt <= r.cfg.Retry.MaxRetries; attempt++ {
		result := channel.Send(ctx, notification, opts)
		if result.Success {
			_ = notification.MarkDelivered()
			_ = r.notifications.UpdateStatus(ctx, notification.ID, notification.Status)
			if err := r.awards.MarkNotified(ctx, event.UserAchievement.ID); err != nil {
				r.logger.Error("failed marking award notified", "user_achievement_id", event.UserAchievement.ID, "error", err)
			}
			return
		}

		errText := ""
		if result.Error != nil {
			errText = result.Error.Error()
		}
		_ = notification.MarkFailed(errText)
		_ = r.notifications.UpdateStatus(ctx, notification.ID, notification.Status)

		if !result.Retryable || attempt == r.cfg.Retry.MaxRetries || !notification.CanRetry() {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = time.Duration(float64(backoff) * r.cfg.Retry.Multiplier)
		if err := notification.ResetForRetry(); err != nil {
			return
		}
		if err := notification.MarkSending(); err != nil {
			return
		}
		_ = r.notifications.UpdateStatus(ctx, notification.ID, notification.Status)
	}
}

// deliverAnnouncement posts the award to the guild's configured announcement
// channel, rate-limited per-guild (it is one public channel shared by every
// member, unlike the DM sink). A failure here is logged and absorbed: the
// announcement is a best-effort public echo of an award that has already
// been durably recorded, not the notification of record.
func (r *Router) deliverAnnouncement(ctx context.Context, notification *notificationdomain.Notification, settings *notificationdomain.GlobalNotificationSettings) {
	sinkKey := "announcement:" + notification.GuildID
	if !r.allowSend(sinkKey) {
		r.logger.Info("announcement deferred by rate limit", "guild_id", notification.GuildID)
		return
	}

	channel, ok := r.channels[notificationdomain.ChannelTypeGuildAnnouncement]
	if !ok {
		r.logger.Error("no channel registered for guild announcement sink")
		return
	}
	if target, ok := channel.(announcementTarget); ok {
		target.SetAnnouncementChannel(settings.GuildID, settings.AnnouncementChannelID)
	}

	result := channel.Send(ctx, notification, notificationdomain.DefaultDeliveryOptions())
	if !result.Success {
		r.logger.Warn("guild announcement delivery failed", "guild_id", notification.GuildID, "error", result.Error)
	}
}

// RetryFailed re-attempts delivery for notifications still under MaxRetries,
// for the periodic retry_notifications job. Every persisted notification row
// is a DM send (the guild announcement sink is best-effort and never
// persisted as a retryable row), so retry always targets the DM channel, and
// performs a single send rather than the full backoff loop in deliver.
func (r *Router) RetryFailed(ctx context.Context, maxRetries, batchSize int) (int, error) {
	failed, err := r.notifications.GetFailedForRetry(ctx, maxRetries, batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch notifications pending retry: %w", err)
	}

	channel, ok := r.channels[notificationdomain.ChannelTypeDirectMessage]
	if !ok {
		return 0, nil
	}

	retried := 0
	for _, n := range failed {
		if err := n.ResetForRetry(); err != nil {
			continue
		}
		if err := n.MarkSending(); err != nil {
			continue
		}
		_ = r.notifications.UpdateStatus(ctx, n.ID, n.Status)

		result := channel.Send(ctx, n, notificationdomain.DefaultDeliveryOptions())
		if result.Success {
			_ = n.MarkDelivered()
		} else {
			errText := ""
			if result.Error != nil {
				errText = result.Error.Error()
			}
			_ = n.MarkFailed(errText)
		}
		_ = r.notifications.UpdateStatus(ctx, n.ID, n.Status)
		retried++
	}

	return retried, nil
}

// allowSend enforces a sliding window per sinkKey: if the last send for this
// key happened within the rate limit window, the send is dropped. Callers
// scope sinkKey to whatever the sink's natural unit of contention is — a
// recipient for DMs, a guild for the shared announcement channel.
func (r *Router) allowSend(sinkKey string) bool {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	now := time.Now()
	last, ok := r.lastEmitted[sinkKey]
	if ok && now.Sub(last) < r.cfg.RateLimitWindow {
		return false
	}
	r.lastEmitted[sinkKey] = now
	return true
}
