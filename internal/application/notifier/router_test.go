package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achievement-engine/engine/internal/application/award"
	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	notificationdomain "github.com/achievement-engine/engine/internal/domain/notification"
	progressdomain "github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakePreferenceRepo struct {
	mu    sync.Mutex
	prefs map[string]*notificationdomain.NotificationPreference
}

func newFakePreferenceRepo() *fakePreferenceRepo {
	return &fakePreferenceRepo{prefs: make(map[string]*notificationdomain.NotificationPreference)}
}
func prefKey(userID notificationdomain.RecipientID, guildID string) string {
	return string(userID) + "|" + guildID
}
func (r *fakePreferenceRepo) Get(ctx context.Context, userID notificationdomain.RecipientID, guildID string) (*notificationdomain.NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[prefKey(userID, guildID)]
	if !ok {
		return nil, shared.NewDomainError("notification", "Get", shared.ErrNotFound, "preference not found")
	}
	return p, nil
}
func (r *fakePreferenceRepo) Save(ctx context.Context, pref *notificationdomain.NotificationPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[prefKey(pref.UserID, pref.GuildID)] = pref
	return nil
}
func (r *fakePreferenceRepo) Delete(ctx context.Context, userID notificationdomain.RecipientID, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prefs, prefKey(userID, guildID))
	return nil
}
func (r *fakePreferenceRepo) ListByGuild(ctx context.Context, guildID string) ([]*notificationdomain.NotificationPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*notificationdomain.NotificationPreference
	for _, p := range r.prefs {
		if p.GuildID == guildID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSettingsRepo struct {
	byGuild map[string]*notificationdomain.GlobalNotificationSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{byGuild: make(map[string]*notificationdomain.GlobalNotificationSettings)}
}
func (r *fakeSettingsRepo) Get(ctx context.Context, guildID string) (*notificationdomain.GlobalNotificationSettings, error) {
	s, ok := r.byGuild[guildID]
	if !ok {
		return nil, shared.NewDomainError("notification", "Get", shared.ErrNotFound, "settings not found")
	}
	return s, nil
}
func (r *fakeSettingsRepo) Save(ctx context.Context, s *notificationdomain.GlobalNotificationSettings) error {
	r.byGuild[s.GuildID] = s
	return nil
}
func (r *fakeSettingsRepo) ListDigestEnabled(ctx context.Context) ([]*notificationdomain.GlobalNotificationSettings, error) {
	var out []*notificationdomain.GlobalNotificationSettings
	for _, s := range r.byGuild {
		if s.DailyDigestEnabled {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	saved   map[notificationdomain.NotificationID]*notificationdomain.Notification
	history []notificationdomain.NotificationStatus
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{saved: make(map[notificationdomain.NotificationID]*notificationdomain.Notification)}
}
func (r *fakeNotificationRepo) Save(ctx context.Context, n *notificationdomain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[n.ID] = n
	return nil
}
func (r *fakeNotificationRepo) GetByID(ctx context.Context, id notificationdomain.NotificationID) (*notificationdomain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.saved[id]
	if !ok {
		return nil, shared.NewDomainError("notification", "GetByID", shared.ErrNotFound, "notification not found")
	}
	return n, nil
}
func (r *fakeNotificationRepo) GetPending(ctx context.Context, limit int) ([]*notificationdomain.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) GetByRecipient(ctx context.Context, recipientID notificationdomain.RecipientID, limit int) ([]*notificationdomain.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) GetByStatus(ctx context.Context, status notificationdomain.NotificationStatus, limit int) ([]*notificationdomain.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) GetFailedForRetry(ctx context.Context, maxRetries, limit int) ([]*notificationdomain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*notificationdomain.Notification
	for _, n := range r.saved {
		if n.Status == notificationdomain.StatusFailed && n.RetryCount < maxRetries {
			out = append(out, n)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (r *fakeNotificationRepo) GetExpired(ctx context.Context, limit int) ([]*notificationdomain.Notification, error) {
	return nil, nil
}
func (r *fakeNotificationRepo) UpdateStatus(ctx context.Context, id notificationdomain.NotificationID, status notificationdomain.NotificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, status)
	return nil
}
func (r *fakeNotificationRepo) Delete(ctx context.Context, id notificationdomain.NotificationID) error {
	return nil
}
func (r *fakeNotificationRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeNotificationRepo) CountByRecipient(ctx context.Context, recipientID notificationdomain.RecipientID, since time.Time) (int, error) {
	return 0, nil
}
func (r *fakeNotificationRepo) CountByType(ctx context.Context, notificationType notificationdomain.NotificationType, since time.Time) (int, error) {
	return 0, nil
}

// fakeChannel records every Send call and returns a scripted result.
type fakeChannel struct {
	channelType notificationdomain.ChannelType
	mu          sync.Mutex
	sent        []*notificationdomain.Notification
	result      notificationdomain.DeliveryResult
}

func newFakeChannel(ct notificationdomain.ChannelType, result notificationdomain.DeliveryResult) *fakeChannel {
	return &fakeChannel{channelType: ct, result: result}
}
func (c *fakeChannel) Type() notificationdomain.ChannelType { return c.channelType }
func (c *fakeChannel) Send(ctx context.Context, n *notificationdomain.Notification, opts notificationdomain.DeliveryOptions) notificationdomain.DeliveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.result
}
func (c *fakeChannel) SendBatch(ctx context.Context, batch *notificationdomain.NotificationBatch, opts notificationdomain.DeliveryOptions) notificationdomain.DeliveryResult {
	return c.result
}
func (c *fakeChannel) IsAvailable(ctx context.Context) bool { return true }
func (c *fakeChannel) SupportsRecipient(n *notificationdomain.Notification) bool { return true }

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// minimal achievement/progress/award fakes so award.Service can be wired.

type noopAchievementRepo struct {
	achievement *catalogdomain.Achievement
}

func (r *noopAchievementRepo) Create(ctx context.Context, a *catalogdomain.Achievement) (*catalogdomain.Achievement, error) {
	return a, nil
}
func (r *noopAchievementRepo) GetByID(ctx context.Context, id shared.AchievementID) (*catalogdomain.Achievement, error) {
	return r.achievement, nil
}
func (r *noopAchievementRepo) Update(ctx context.Context, a *catalogdomain.Achievement) error { return nil }
func (r *noopAchievementRepo) SoftDelete(ctx context.Context, id shared.AchievementID) error  { return nil }
func (r *noopAchievementRepo) List(ctx context.Context, filter catalogdomain.AchievementFilter) ([]*catalogdomain.Achievement, error) {
	return nil, nil
}
func (r *noopAchievementRepo) CountByCategory(ctx context.Context, categoryID shared.CategoryID, activeOnly bool) (int, error) {
	return 0, nil
}
func (r *noopAchievementRepo) DeactivateByCategory(ctx context.Context, categoryID shared.CategoryID) (int64, error) {
	return 0, nil
}

type noopProgressRepo struct{}

func (r *noopProgressRepo) Apply(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, targetValue shared.ProgressValue, delta progressdomain.Delta) (progressdomain.TransitionReport, error) {
	return progressdomain.TransitionReport{}, nil
}
func (r *noopProgressRepo) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.AchievementProgress, error) {
	return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "not found")
}
func (r *noopProgressRepo) GetByUser(ctx context.Context, userID shared.UserID) ([]*progressdomain.AchievementProgress, error) {
	return nil, nil
}
func (r *noopProgressRepo) Reset(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) error {
	return nil
}
func (r *noopProgressRepo) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	return 0, nil
}

type fakeAwardRepo struct {
	notifiedIDs map[int64]bool
}

func newFakeAwardRepo() *fakeAwardRepo {
	return &fakeAwardRepo{notifiedIDs: make(map[int64]bool)}
}
func (r *fakeAwardRepo) Award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.UserAchievement, bool, error) {
	record := progressdomain.NewUserAchievement(userID, achievementID)
	record.ID = 1
	return record, true, nil
}
func (r *fakeAwardRepo) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.UserAchievement, error) {
	return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "not found")
}
func (r *fakeAwardRepo) GetByUser(ctx context.Context, userID shared.UserID) ([]*progressdomain.UserAchievement, error) {
	return nil, nil
}
func (r *fakeAwardRepo) MarkNotified(ctx context.Context, id int64) error {
	r.notifiedIDs[id] = true
	return nil
}
func (r *fakeAwardRepo) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	return 0, nil
}

// ── tests ────────────────────────────────────────────────────────────────────

func newTestRouter(t *testing.T, channel *fakeChannel) (*Router, *award.Service, *fakeAwardRepo, *fakeNotificationRepo, *fakePreferenceRepo) {
	t.Helper()
	achievements := &noopAchievementRepo{achievement: &catalogdomain.Achievement{ID: 1, Name: "Welcome", Points: 10}}
	awardRepo := newFakeAwardRepo()
	awardSvc := award.NewService(achievements, &noopProgressRepo{}, awardRepo, nil)

	prefs := newFakePreferenceRepo()
	settings := newFakeSettingsRepo()
	notifications := newFakeNotificationRepo()

	channels := map[notificationdomain.ChannelType]notificationdomain.NotificationChannel{
		notificationdomain.ChannelTypeDirectMessage: channel,
	}

	router := NewRouter(prefs, settings, notifications, channels, awardSvc, Config{
		RateLimitWindow: time.Millisecond,
		Retry:           RetryPolicy{MaxRetries: 0},
	})

	return router, awardSvc, awardRepo, notifications, prefs
}

func TestRouter_HandlesAwardAndDelivers(t *testing.T) {
	channel := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-1"))
	router, awardSvc, awardRepo, notifications, _ := newTestRouter(t, channel)

	router.Start()
	defer router.Stop()

	_, awarded, err := awardSvc.AwardDirectly(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	require.True(t, awarded)

	require.Eventually(t, func() bool { return channel.sentCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, awardRepo.notifiedIDs[1])
	assert.Contains(t, notifications.history, notificationdomain.StatusDelivered)
}

func TestRouter_HandleAward_DisabledPreferenceSkipsDelivery(t *testing.T) {
	channel := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-1"))
	router, awardSvc, _, _, prefs := newTestRouter(t, channel)

	disabled := notificationdomain.NewDefaultPreference(notificationdomain.RecipientID("u1"), "g1")
	disabled.Enabled = false
	require.NoError(t, prefs.Save(context.Background(), disabled))

	router.Start()
	defer router.Stop()

	_, awarded, err := awardSvc.AwardDirectly(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	require.True(t, awarded)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, channel.sentCount(), "disabled preference must suppress delivery entirely")
}

func TestRouter_Deliver_DefersNonUrgentNotificationDuringQuietHours(t *testing.T) {
	channel := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-1"))
	router, _, _, notifications, _ := newTestRouter(t, channel)

	pref := notificationdomain.NewDefaultPreference(notificationdomain.RecipientID("u1"), "g1")
	pref.QuietHoursStart = 0
	pref.QuietHoursEnd = 24 // covers every hour of the day for this test

	n, err := notificationdomain.NewNotification(notificationdomain.NewNotificationParams{
		ID:          notificationdomain.NotificationID("n1"),
		Type:        notificationdomain.NotificationTypeProgressMilestone,
		RecipientID: notificationdomain.RecipientID("u1"),
		GuildID:     "g1",
		Message:     "Halfway there!",
	})
	require.NoError(t, err)
	require.False(t, n.Priority.ShouldSendImmediately(), "progress milestones must be deferrable during quiet hours")

	router.deliver(context.Background(), n, resolvedPreference{
		preference: pref,
		settings:   notificationdomain.NewDefaultGlobalSettings("g1"),
	}, award.AwardEvent{})

	assert.Equal(t, 0, channel.sentCount(), "quiet hours must suppress immediate delivery")
	assert.Equal(t, notificationdomain.StatusQueued, n.Status)
	require.NotNil(t, n.ScheduledAt, "a deferred notification must carry its next send time")
	assert.Contains(t, notifications.history, notificationdomain.StatusQueued)
}

func TestRouter_AllowSend_RateLimitsSecondSendInWindow(t *testing.T) {
	channel := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-1"))
	router, _, _, _, _ := newTestRouter(t, channel)
	router.cfg.RateLimitWindow = time.Hour

	assert.True(t, router.allowSend("g1:dm"))
	assert.False(t, router.allowSend("g1:dm"), "second send within the window must be rejected")
	assert.True(t, router.allowSend("g2:dm"), "a different sink key is unaffected")
}

func TestRouter_DMRateLimit_IsScopedPerRecipientNotGuild(t *testing.T) {
	channel := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-1"))
	router, awardSvc, _, _, _ := newTestRouter(t, channel)
	router.cfg.RateLimitWindow = time.Hour

	router.Start()
	defer router.Stop()

	_, awarded, err := awardSvc.AwardDirectly(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	require.True(t, awarded)
	_, awarded, err = awardSvc.AwardDirectly(context.Background(), shared.UserID("u2"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	require.True(t, awarded)

	require.Eventually(t, func() bool { return channel.sentCount() == 2 }, time.Second, time.Millisecond,
		"u1's DM send must not consume u2's rate limit slot in the same guild")
}

func TestRouter_Deliver_FiresBothSinksWhenGuildAnnouncementsAreOn(t *testing.T) {
	dm := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-1"))
	announce := newFakeChannel(notificationdomain.ChannelTypeGuildAnnouncement, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeGuildAnnouncement, "msg-2"))

	achievements := &noopAchievementRepo{achievement: &catalogdomain.Achievement{ID: 1, Name: "Welcome", Points: 10}}
	awardRepo := newFakeAwardRepo()
	awardSvc := award.NewService(achievements, &noopProgressRepo{}, awardRepo, nil)
	prefs := newFakePreferenceRepo()
	settings := newFakeSettingsRepo()
	notifications := newFakeNotificationRepo()

	guildSettings := notificationdomain.NewDefaultGlobalSettings("g1")
	guildSettings.AnnounceAwards = true
	guildSettings.AnnouncementChannelID = "chan-1"
	require.NoError(t, settings.Save(context.Background(), guildSettings))

	router := NewRouter(prefs, settings, notifications, map[notificationdomain.ChannelType]notificationdomain.NotificationChannel{
		notificationdomain.ChannelTypeDirectMessage:     dm,
		notificationdomain.ChannelTypeGuildAnnouncement: announce,
	}, awardSvc, Config{RateLimitWindow: time.Millisecond, Retry: RetryPolicy{MaxRetries: 0}})

	router.Start()
	defer router.Stop()

	_, awarded, err := awardSvc.AwardDirectly(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	require.True(t, awarded)

	require.Eventually(t, func() bool { return dm.sentCount() == 1 && announce.sentCount() == 1 }, time.Second, time.Millisecond,
		"a guild with announcements on must deliver both the DM and the announcement sink for one award")
}

func TestRouter_RetryFailed_RedeliversAndMarksDelivered(t *testing.T) {
	channel := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-2"))
	router, _, _, notifications, _ := newTestRouter(t, channel)

	n, err := notificationdomain.NewNotification(notificationdomain.NewNotificationParams{
		ID:          "n1",
		Type:        notificationdomain.NotificationTypeAchievementAwarded,
		RecipientID: "u1",
		GuildID:     "g1",
		Title:       "t",
		Message:     "m",
	})
	require.NoError(t, err)
	require.NoError(t, n.MarkSending())
	require.NoError(t, n.MarkFailed("boom"))
	require.NoError(t, notifications.Save(context.Background(), n))

	retried, err := router.RetryFailed(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, 1, channel.sentCount())
	assert.Equal(t, notificationdomain.StatusDelivered, n.Status)
}

func TestRouter_RetryFailed_SkipsExhaustedRetries(t *testing.T) {
	channel := newFakeChannel(notificationdomain.ChannelTypeDirectMessage, notificationdomain.NewSuccessResult(notificationdomain.ChannelTypeDirectMessage, "msg-3"))
	router, _, _, notifications, _ := newTestRouter(t, channel)

	n, err := notificationdomain.NewNotification(notificationdomain.NewNotificationParams{
		ID: "n2", Type: notificationdomain.NotificationTypeAchievementAwarded,
		RecipientID: "u1", GuildID: "g1", Title: "t", Message: "m", MaxRetries: 1,
	})
	require.NoError(t, err)
	require.NoError(t, n.MarkSending())
	require.NoError(t, n.MarkFailed("boom"))
	require.NoError(t, notifications.Save(context.Background(), n))

	retried, err := router.RetryFailed(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, retried, "maxRetries=0 must exclude every failed notification from the sweep")
	assert.Equal(t, 0, channel.sentCount())
}
