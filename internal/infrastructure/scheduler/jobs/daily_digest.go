package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY DIGEST JOB
// ══════════════════════════════════════════════════════════════════════════════

// DailyDigestJob sends each user a summary of the achievements they earned
// over the past day. It sweeps every guild with DailyDigestEnabled set,
// then every known user of that guild (one with a notification preference
// row, the only existing proxy for guild membership), and builds a digest
// from their recent UserAchievement rows.
type DailyDigestJob struct {
	settings      notification.GlobalSettingsRepository
	preferences   notification.PreferenceRepository
	notifications notification.NotificationRepository
	awards        progress.AwardRepository
	channels      map[notification.ChannelType]notification.NotificationChannel

	logger *slog.Logger
	config DailyDigestConfig

	lastRunStats atomic.Value // *DailyDigestStats
}

// DailyDigestConfig configures the daily digest job.
type DailyDigestConfig struct {
	// Window is how far back to look for awards; the default is 24h, the
	// same as the digest job's scheduling period in cmd/engine.
	Window time.Duration

	// Concurrency bounds how many guild sweeps run at once.
	Concurrency int

	// Timeout bounds the whole run; zero disables it.
	Timeout time.Duration
}

// DefaultDailyDigestConfig returns sensible defaults.
func DefaultDailyDigestConfig() DailyDigestConfig {
	return DailyDigestConfig{Window: 24 * time.Hour, Concurrency: 4, Timeout: 5 * time.Minute}
}

// DailyDigestStats records the outcome of one run, retrievable via
// LastRunStats for health and admin reporting.
type DailyDigestStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration

	GuildsSwept       int
	RecipientsSent    int
	RecipientsSkipped int
	Errors            []error
}

// NewDailyDigestJob creates a new DailyDigestJob.
func NewDailyDigestJob(
	settings notification.GlobalSettingsRepository,
	preferences notification.PreferenceRepository,
	notifications notification.NotificationRepository,
	awards progress.AwardRepository,
	channels map[notification.ChannelType]notification.NotificationChannel,
	logger *slog.Logger,
	config DailyDigestConfig,
) *DailyDigestJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Window <= 0 {
		config = DefaultDailyDigestConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultDailyDigestConfig().Concurrency
	}
	return &DailyDigestJob{
		settings:      settings,
		preferences:   preferences,
		notifications: notifications,
		awards:        awards,
		channels:      channels,
		logger:        logger,
		config:        config,
	}
}

// Name returns the job name.
func (j *DailyDigestJob) Name() string { return "daily_digest" }

// Description returns a human-readable description.
func (j *DailyDigestJob) Description() string {
	return "Sends each user a summary of achievements earned in the past day"
}

// Run executes the daily digest job.
func (j *DailyDigestJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &DailyDigestStats{StartedAt: startedAt, Errors: make([]error, 0)}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	guilds, err := j.settings.ListDigestEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list digest-enabled guilds: %w", err)
	}
	stats.GuildsSwept = len(guilds)

	if len(guilds) == 0 {
		j.finish(stats, startedAt)
		return nil
	}

	cutoff := time.Now().UTC().Add(-j.config.Window)
	j.sweepGuildsConcurrently(ctx, guilds, cutoff, stats)

	j.finish(stats, startedAt)
	j.logger.Info("daily_digest job completed",
		"duration", stats.Duration.String(),
		"guilds", stats.GuildsSwept,
		"sent", stats.RecipientsSent,
		"skipped", stats.RecipientsSkipped,
	)
	return nil
}

func (j *DailyDigestJob) finish(stats *DailyDigestStats, startedAt time.Time) {
	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)
}

// sweepGuildsConcurrently digests each guild using a worker pool.
func (j *DailyDigestJob) sweepGuildsConcurrently(
	ctx context.Context,
	guilds []*notification.GlobalNotificationSettings,
	cutoff time.Time,
	stats *DailyDigestStats,
) {
	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, j.config.Concurrency)
		mu        sync.Mutex
	)

	for _, g := range guilds {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(settings *notification.GlobalNotificationSettings) {
			defer wg.Done()
			defer func() { <-semaphore }()

			sent, skipped, err := j.digestGuild(ctx, settings, cutoff)

			mu.Lock()
			defer mu.Unlock()
			stats.RecipientsSent += sent
			stats.RecipientsSkipped += skipped
			if err != nil {
				stats.Errors = append(stats.Errors, err)
				j.logger.Error("failed digesting guild", "guild_id", settings.GuildID, "error", err)
			}
		}(g)
	}

	wg.Wait()
}

// digestGuild builds and sends a digest to every known user of one guild who
// earned at least one achievement since cutoff.
func (j *DailyDigestJob) digestGuild(ctx context.Context, settings *notification.GlobalNotificationSettings, cutoff time.Time) (sent, skipped int, err error) {
	prefs, err := j.preferences.ListByGuild(ctx, settings.GuildID)
	if err != nil {
		return 0, 0, fmt.Errorf("list guild %s preferences: %w", settings.GuildID, err)
	}

	for _, pref := range prefs {
		if !pref.Enabled || !pref.DMEnabled {
			skipped++
			continue
		}

		earned, err := j.awards.GetByUser(ctx, shared.UserID(pref.UserID))
		if err != nil {
			j.logger.Error("failed loading awards for digest", "user_id", pref.UserID, "error", err)
			skipped++
			continue
		}

		recent := make([]*progress.UserAchievement, 0)
		for _, a := range earned {
			if a.EarnedAt.After(cutoff) {
				recent = append(recent, a)
			}
		}
		if len(recent) == 0 {
			skipped++
			continue
		}

		if err := j.sendDigest(ctx, pref, settings.GuildID, recent, cutoff); err != nil {
			j.logger.Error("failed sending digest", "user_id", pref.UserID, "error", err)
			skipped++
			continue
		}
		sent++
	}

	return sent, skipped, nil
}

func (j *DailyDigestJob) sendDigest(ctx context.Context, pref *notification.NotificationPreference, guildID string, earned []*progress.UserAchievement, periodStart time.Time) error {
	// A digest is always a personal DM batch, never a guild announcement.
	channel, ok := j.channels[notification.ChannelTypeDirectMessage]
	if !ok {
		return fmt.Errorf("no channel registered for %s", notification.ChannelTypeDirectMessage)
	}

	note, err := notification.NewNotification(notification.NewNotificationParams{
		ID:          notification.NotificationID(uuid.NewString()),
		Type:        notification.NotificationTypeDailyDigest,
		RecipientID: pref.UserID,
		GuildID:     guildID,
		Title:       "Your daily achievement digest",
		Message:     fmt.Sprintf("You earned %d achievement(s) in the last day.", len(earned)),
		Data: notification.NotificationData{
			AwardsInPeriod: len(earned),
			PeriodStart:    &periodStart,
		},
	})
	if err != nil {
		return fmt.Errorf("construct digest notification: %w", err)
	}

	if err := j.notifications.Save(ctx, note); err != nil {
		return fmt.Errorf("save digest notification: %w", err)
	}

	if err := note.MarkSending(); err != nil {
		return err
	}
	_ = j.notifications.UpdateStatus(ctx, note.ID, note.Status)

	result := channel.Send(ctx, note, notification.DefaultDeliveryOptions())
	if result.Success {
		_ = note.MarkDelivered()
	} else {
		errText := ""
		if result.Error != nil {
			errText = result.Error.Error()
		}
		_ = note.MarkFailed(errText)
	}
	_ = j.notifications.UpdateStatus(ctx, note.ID, note.Status)
	return nil
}

// LastRunStats returns the stats from the most recent run, or nil if the job
// has never run.
func (j *DailyDigestJob) LastRunStats() *DailyDigestStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*DailyDigestStats)
	}
	return nil
}
