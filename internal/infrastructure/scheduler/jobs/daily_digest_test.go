package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

type fakeSettingsRepo struct {
	digestEnabled []*notification.GlobalNotificationSettings
}

func (r *fakeSettingsRepo) Get(ctx context.Context, guildID string) (*notification.GlobalNotificationSettings, error) {
	for _, s := range r.digestEnabled {
		if s.GuildID == guildID {
			return s, nil
		}
	}
	return nil, notification.ErrSettingsNotFound
}
func (r *fakeSettingsRepo) Save(ctx context.Context, settings *notification.GlobalNotificationSettings) error {
	return nil
}
func (r *fakeSettingsRepo) ListDigestEnabled(ctx context.Context) ([]*notification.GlobalNotificationSettings, error) {
	return r.digestEnabled, nil
}

type fakePreferenceRepo struct {
	byGuild map[string][]*notification.NotificationPreference
}

func (r *fakePreferenceRepo) Get(ctx context.Context, userID notification.RecipientID, guildID string) (*notification.NotificationPreference, error) {
	for _, p := range r.byGuild[guildID] {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, notification.ErrPreferenceNotFound
}
func (r *fakePreferenceRepo) Save(ctx context.Context, pref *notification.NotificationPreference) error {
	return nil
}
func (r *fakePreferenceRepo) Delete(ctx context.Context, userID notification.RecipientID, guildID string) error {
	return nil
}
func (r *fakePreferenceRepo) ListByGuild(ctx context.Context, guildID string) ([]*notification.NotificationPreference, error) {
	return r.byGuild[guildID], nil
}

type fakeNotificationRepo struct {
	mu    sync.Mutex
	saved map[notification.NotificationID]*notification.Notification
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{saved: make(map[notification.NotificationID]*notification.Notification)}
}
func (r *fakeNotificationRepo) Save(ctx context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[n.ID] = n
	return nil
}
func (r *fakeNotificationRepo) GetByID(ctx context.Context, id notification.NotificationID) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.saved[id]
	if !ok {
		return nil, notification.ErrNotificationNotFound
	}
	return n, nil
}
func (r *fakeNotificationRepo) GetPending(ctx context.Context, limit int) ([]*notification.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) GetByRecipient(ctx context.Context, recipientID notification.RecipientID, limit int) ([]*notification.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) GetByStatus(ctx context.Context, status notification.NotificationStatus, limit int) ([]*notification.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) GetFailedForRetry(ctx context.Context, maxRetries, limit int) ([]*notification.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) GetExpired(ctx context.Context, limit int) ([]*notification.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) UpdateStatus(ctx context.Context, id notification.NotificationID, status notification.NotificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.saved[id]; ok {
		n.Status = status
	}
	return nil
}
func (r *fakeNotificationRepo) Delete(ctx context.Context, id notification.NotificationID) error { return nil }
func (r *fakeNotificationRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeNotificationRepo) CountByRecipient(ctx context.Context, recipientID notification.RecipientID, since time.Time) (int, error) {
	return 0, nil
}
func (r *fakeNotificationRepo) CountByType(ctx context.Context, notificationType notification.NotificationType, since time.Time) (int, error) {
	return 0, nil
}

type fakeAwardRepo struct {
	byUser map[shared.UserID][]*progress.UserAchievement
}

func (r *fakeAwardRepo) Award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progress.UserAchievement, bool, error) {
	return nil, false, nil
}
func (r *fakeAwardRepo) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progress.UserAchievement, error) {
	return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "not found")
}
func (r *fakeAwardRepo) GetByUser(ctx context.Context, userID shared.UserID) ([]*progress.UserAchievement, error) {
	return r.byUser[userID], nil
}
func (r *fakeAwardRepo) MarkNotified(ctx context.Context, id int64) error { return nil }
func (r *fakeAwardRepo) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	return 0, nil
}

type fakeChannel struct {
	channelType notification.ChannelType
	result      notification.DeliveryResult
	sent        []*notification.Notification
}

func (c *fakeChannel) Type() notification.ChannelType { return c.channelType }
func (c *fakeChannel) Send(ctx context.Context, n *notification.Notification, opts notification.DeliveryOptions) notification.DeliveryResult {
	c.sent = append(c.sent, n)
	return c.result
}
func (c *fakeChannel) SendBatch(ctx context.Context, batch *notification.NotificationBatch, opts notification.DeliveryOptions) notification.DeliveryResult {
	return c.result
}
func (c *fakeChannel) IsAvailable(ctx context.Context) bool                 { return true }
func (c *fakeChannel) SupportsRecipient(n *notification.Notification) bool { return true }

func TestDailyDigestJob_Run_NoGuildsEnabledIsNoop(t *testing.T) {
	job := NewDailyDigestJob(
		&fakeSettingsRepo{},
		&fakePreferenceRepo{},
		newFakeNotificationRepo(),
		&fakeAwardRepo{byUser: map[shared.UserID][]*progress.UserAchievement{}},
		nil, nil, DailyDigestConfig{Window: time.Hour, Concurrency: 1},
	)

	require.NoError(t, job.Run(context.Background()))
	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.GuildsSwept)
}

func TestDailyDigestJob_Run_SendsDigestForRecentAwardsOnly(t *testing.T) {
	guildID := "g1"
	userID := notification.RecipientID("u1")
	settings := &fakeSettingsRepo{digestEnabled: []*notification.GlobalNotificationSettings{
		{GuildID: guildID, DailyDigestEnabled: true},
	}}
	preferences := &fakePreferenceRepo{byGuild: map[string][]*notification.NotificationPreference{
		guildID: {notification.NewDefaultPreference(userID, guildID)},
	}}
	notifications := newFakeNotificationRepo()
	awards := &fakeAwardRepo{byUser: map[shared.UserID][]*progress.UserAchievement{
		shared.UserID(userID): {
			{ID: 1, UserID: shared.UserID(userID), AchievementID: 1, EarnedAt: time.Now()},
			{ID: 2, UserID: shared.UserID(userID), AchievementID: 2, EarnedAt: time.Now().Add(-48 * time.Hour)},
		},
	}}
	channel := &fakeChannel{channelType: notification.ChannelTypeDirectMessage, result: notification.NewSuccessResult(notification.ChannelTypeDirectMessage, "msg-1")}
	channels := map[notification.ChannelType]notification.NotificationChannel{
		notification.ChannelTypeDirectMessage: channel,
	}

	job := NewDailyDigestJob(settings, preferences, notifications, awards, channels, nil, DailyDigestConfig{Window: 24 * time.Hour, Concurrency: 2})

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, channel.sent, 1, "one digest for the one recipient")
	assert.Equal(t, 1, channel.sent[0].Data.AwardsInPeriod, "only the award within the digest window should be included")
	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.RecipientsSent)
	assert.Equal(t, 0, stats.RecipientsSkipped)
}

func TestDailyDigestJob_Run_SkipsDisabledPreference(t *testing.T) {
	guildID := "g1"
	userID := notification.RecipientID("u1")
	pref := notification.NewDefaultPreference(userID, guildID)
	pref.Enabled = false

	settings := &fakeSettingsRepo{digestEnabled: []*notification.GlobalNotificationSettings{{GuildID: guildID, DailyDigestEnabled: true}}}
	preferences := &fakePreferenceRepo{byGuild: map[string][]*notification.NotificationPreference{guildID: {pref}}}
	notifications := newFakeNotificationRepo()
	awards := &fakeAwardRepo{byUser: map[shared.UserID][]*progress.UserAchievement{}}

	job := NewDailyDigestJob(settings, preferences, notifications, awards, nil, nil, DailyDigestConfig{Window: 24 * time.Hour, Concurrency: 1})

	require.NoError(t, job.Run(context.Background()))
	stats := job.LastRunStats()
	assert.Equal(t, 0, stats.RecipientsSent)
	assert.Equal(t, 1, stats.RecipientsSkipped)
}
