package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achievement-engine/engine/internal/application/award"
	progressapp "github.com/achievement-engine/engine/internal/application/progress"
	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	progressdomain "github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
	"github.com/achievement-engine/engine/internal/evaluator"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeEventRepo struct {
	mu        sync.Mutex
	processed map[int64]bool
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{processed: make(map[int64]bool)}
}
func (r *fakeEventRepo) RecordEvent(ctx context.Context, record *events.EventRecord) (*events.EventRecord, error) {
	return record, nil
}
func (r *fakeEventRepo) RecordEventsBatch(ctx context.Context, records []*events.EventRecord) ([]*events.EventRecord, error) {
	return records, nil
}
func (r *fakeEventRepo) FetchUnprocessed(ctx context.Context, limit int) ([]*events.EventRecord, error) {
	return nil, nil
}
func (r *fakeEventRepo) MarkProcessed(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[id] = true
	return nil
}
func (r *fakeEventRepo) MarkProcessedBatch(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.processed[id] = true
	}
	return nil
}
func (r *fakeEventRepo) GetByUserGuild(ctx context.Context, userID shared.UserID, guildID shared.GuildID, page shared.Pagination) ([]*events.EventRecord, error) {
	return nil, nil
}
func (r *fakeEventRepo) CleanupOldEvents(ctx context.Context, before time.Time, keepProcessed bool) (int64, error) {
	return 0, nil
}
func (r *fakeEventRepo) ArchiveOldEvents(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeEventRepo) isProcessed(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed[id]
}

type fakeAchievementRepo struct {
	byType map[catalogdomain.AchievementType][]*catalogdomain.Achievement
	byID   map[shared.AchievementID]*catalogdomain.Achievement
}

func newFakeAchievementRepo(achievements ...*catalogdomain.Achievement) *fakeAchievementRepo {
	r := &fakeAchievementRepo{
		byType: make(map[catalogdomain.AchievementType][]*catalogdomain.Achievement),
		byID:   make(map[shared.AchievementID]*catalogdomain.Achievement),
	}
	for _, a := range achievements {
		r.byType[a.Type] = append(r.byType[a.Type], a)
		r.byID[a.ID] = a
	}
	return r
}
func (r *fakeAchievementRepo) Create(ctx context.Context, a *catalogdomain.Achievement) (*catalogdomain.Achievement, error) {
	return a, nil
}
func (r *fakeAchievementRepo) GetByID(ctx context.Context, id shared.AchievementID) (*catalogdomain.Achievement, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, shared.NewDomainError("catalog", "GetByID", shared.ErrNotFound, "not found")
	}
	return a, nil
}
func (r *fakeAchievementRepo) Update(ctx context.Context, a *catalogdomain.Achievement) error { return nil }
func (r *fakeAchievementRepo) SoftDelete(ctx context.Context, id shared.AchievementID) error   { return nil }
func (r *fakeAchievementRepo) List(ctx context.Context, filter catalogdomain.AchievementFilter) ([]*catalogdomain.Achievement, error) {
	if filter.Type == nil {
		return nil, nil
	}
	return r.byType[*filter.Type], nil
}
func (r *fakeAchievementRepo) CountByCategory(ctx context.Context, categoryID shared.CategoryID, activeOnly bool) (int, error) {
	return 0, nil
}
func (r *fakeAchievementRepo) DeactivateByCategory(ctx context.Context, categoryID shared.CategoryID) (int64, error) {
	return 0, nil
}

type fakeProgressRepo struct {
	mu   sync.Mutex
	rows map[string]*progressdomain.AchievementProgress
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{rows: make(map[string]*progressdomain.AchievementProgress)}
}
func progressKey(userID shared.UserID, achievementID shared.AchievementID) string {
	return fmt.Sprintf("%s|%d", userID, achievementID)
}
func (r *fakeProgressRepo) Apply(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, targetValue shared.ProgressValue, delta progressdomain.Delta) (progressdomain.TransitionReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := progressKey(userID, achievementID)
	row, ok := r.rows[k]
	if !ok {
		row = &progressdomain.AchievementProgress{UserID: userID, AchievementID: achievementID}
		r.rows[k] = row
	}
	previous := row.CurrentValue
	row.TargetValue = targetValue
	delta.Apply(row)
	return progressdomain.NewTransitionReport(userID, achievementID, previous, row.CurrentValue, targetValue), nil
}
func (r *fakeProgressRepo) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.AchievementProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[progressKey(userID, achievementID)]
	if !ok {
		return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "not found")
	}
	return row, nil
}
func (r *fakeProgressRepo) GetByUser(ctx context.Context, userID shared.UserID) ([]*progressdomain.AchievementProgress, error) {
	return nil, nil
}
func (r *fakeProgressRepo) Reset(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) error {
	return nil
}
func (r *fakeProgressRepo) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	return 0, nil
}

type fakeAwardRepo struct {
	mu      sync.Mutex
	awarded map[string]bool
}

func newFakeAwardRepo() *fakeAwardRepo {
	return &fakeAwardRepo{awarded: make(map[string]bool)}
}
func (r *fakeAwardRepo) Award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.UserAchievement, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := progressKey(userID, achievementID)
	if r.awarded[k] {
		return progressdomain.NewUserAchievement(userID, achievementID), false, nil
	}
	r.awarded[k] = true
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
func (r *fakeAwardRepo) MarkNotified(ctx context.Context, id int64) error { return nil }
func (r *fakeAwardRepo) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	return 0, nil
}
func (r *fakeAwardRepo) wasAwarded(userID shared.UserID, achievementID shared.AchievementID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.awarded[progressKey(userID, achievementID)]
}

// ── test ─────────────────────────────────────────────────────────────────────

func TestTriggerEngine_Dispatch_AwardsOnThresholdCross(t *testing.T) {
	achievement := &catalogdomain.Achievement{
		ID:       shared.AchievementID(1),
		Type:     catalogdomain.TypeCounter,
		IsActive: true,
		Criteria: catalogdomain.Criteria{TargetValue: 3},
	}
	achievements := newFakeAchievementRepo(achievement)
	progressRepo := newFakeProgressRepo()
	eventRepo := newFakeEventRepo()
	awardRepo := newFakeAwardRepo()

	registry := evaluator.NewRegistry()
	registry.Register(catalogdomain.TypeCounter, evaluator.NewCounterEvaluator([]string{"discord.message_sent"}))

	tracker := progressapp.NewTracker(achievements, progressRepo)
	awardSvc := award.NewService(achievements, progressRepo, awardRepo, nil)

	eng := NewTriggerEngine(eventRepo, achievements, registry, tracker, awardSvc, Config{
		QueueSize: 8, WorkerCount: 2, Policy: PolicyBlock,
	})
	eng.BuildCandidateIndex([]catalogdomain.AchievementType{catalogdomain.TypeCounter})
	defer eng.Shutdown()

	ctx := context.Background()
	userID := shared.UserID("u1")
	for i := int64(1); i <= 3; i++ {
		record := &events.EventRecord{
			ID:        i,
			UserID:    userID,
			GuildID:   shared.GuildID("g1"),
			EventType: "discord.message_sent",
			EventData: json.RawMessage(`{"amount": 1}`),
			Timestamp: time.Now(),
		}
		require.NoError(t, eng.Dispatch(ctx, record))
	}

	require.Eventually(t, func() bool {
		return awardRepo.wasAwarded(userID, achievement.ID)
	}, time.Second, 5*time.Millisecond, "three counted events against a target of three must cross the threshold and award")

	require.Eventually(t, func() bool {
		return eventRepo.isProcessed(1) && eventRepo.isProcessed(2) && eventRepo.isProcessed(3)
	}, time.Second, 5*time.Millisecond)
}

func TestTriggerEngine_Dispatch_UnknownEventTypeIsNoop(t *testing.T) {
	achievements := newFakeAchievementRepo()
	progressRepo := newFakeProgressRepo()
	eventRepo := newFakeEventRepo()
	awardRepo := newFakeAwardRepo()
	registry := evaluator.NewRegistry()

	tracker := progressapp.NewTracker(achievements, progressRepo)
	awardSvc := award.NewService(achievements, progressRepo, awardRepo, nil)

	eng := NewTriggerEngine(eventRepo, achievements, registry, tracker, awardSvc, Config{QueueSize: 4, WorkerCount: 1})
	defer eng.Shutdown()

	record := &events.EventRecord{ID: 1, EventType: "discord.unknown_event", Timestamp: time.Now()}
	require.NoError(t, eng.Dispatch(context.Background(), record))

	require.Eventually(t, func() bool { return eventRepo.isProcessed(1) }, time.Second, 5*time.Millisecond,
		"an event with no registered candidates must still be marked processed")
}

func TestTriggerEngine_Dispatch_ShedPolicyReturnsErrBusyWhenQueueFull(t *testing.T) {
	achievements := newFakeAchievementRepo()
	progressRepo := newFakeProgressRepo()
	eventRepo := newFakeEventRepo()
	awardRepo := newFakeAwardRepo()
	registry := evaluator.NewRegistry()

	tracker := progressapp.NewTracker(achievements, progressRepo)
	awardSvc := award.NewService(achievements, progressRepo, awardRepo, nil)

	// Zero workers so the queue never drains, forcing Dispatch to observe it full.
	eng := &TriggerEngine{
		events:       eventRepo,
		achievements: achievements,
		registry:     registry,
		tracker:      tracker,
		awards:       awardSvc,
		cfg:          Config{QueueSize: 1, Policy: PolicyShed},
		logger:       slog.Default(),
		queue:        make(chan *events.EventRecord, 1),
		cancel:       func() {},
	}

	require.NoError(t, eng.Dispatch(context.Background(), &events.EventRecord{ID: 1}))
	err := eng.Dispatch(context.Background(), &events.EventRecord{ID: 2})
	assert.ErrorIs(t, err, ErrBusy)
}
