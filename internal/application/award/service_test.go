package award

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	progressdomain "github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

type fakeAchievementRepo struct {
	byID map[shared.AchievementID]*catalogdomain.Achievement
}

func newFakeAchievementRepo(achievements ...*catalogdomain.Achievement) *fakeAchievementRepo {
	r := &fakeAchievementRepo{byID: make(map[shared.AchievementID]*catalogdomain.Achievement)}
	for _, a := range achievements {
		r.byID[a.ID] = a
	}
	return r
}

func (r *fakeAchievementRepo) Create(ctx context.Context, a *catalogdomain.Achievement) (*catalogdomain.Achievement, error) {
	r.byID[a.ID] = a
	return a, nil
}
func (r *fakeAchievementRepo) GetByID(ctx context.Context, id shared.AchievementID) (*catalogdomain.Achievement, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, shared.NewDomainError("catalog", "GetByID", shared.ErrNotFound, "achievement not found")
	}
	return a, nil
}
func (r *fakeAchievementRepo) Update(ctx context.Context, a *catalogdomain.Achievement) error {
	r.byID[a.ID] = a
	return nil
}
func (r *fakeAchievementRepo) SoftDelete(ctx context.Context, id shared.AchievementID) error {
	delete(r.byID, id)
	return nil
}
func (r *fakeAchievementRepo) List(ctx context.Context, filter catalogdomain.AchievementFilter) ([]*catalogdomain.Achievement, error) {
	return nil, nil
}
func (r *fakeAchievementRepo) CountByCategory(ctx context.Context, categoryID shared.CategoryID, activeOnly bool) (int, error) {
	return 0, nil
}
func (r *fakeAchievementRepo) DeactivateByCategory(ctx context.Context, categoryID shared.CategoryID) (int64, error) {
	return 0, nil
}

type fakeProgressRepo struct {
	rows map[string]*progressdomain.AchievementProgress
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{rows: make(map[string]*progressdomain.AchievementProgress)}
}

func progressKey(userID shared.UserID, achievementID shared.AchievementID) string {
	return fmt.Sprintf("%s|%d", userID, achievementID)
}

func (r *fakeProgressRepo) Apply(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, targetValue shared.ProgressValue, delta progressdomain.Delta) (progressdomain.TransitionReport, error) {
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
	row, ok := r.rows[progressKey(userID, achievementID)]
	if !ok {
		return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "progress not found")
	}
	return row, nil
}
func (r *fakeProgressRepo) GetByUser(ctx context.Context, userID shared.UserID) ([]*progressdomain.AchievementProgress, error) {
	return nil, nil
}
func (r *fakeProgressRepo) Reset(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) error {
	delete(r.rows, progressKey(userID, achievementID))
	return nil
}
func (r *fakeProgressRepo) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	return 0, nil
}

// fakeAwardRepo implements progressdomain.AwardRepository with a unique
// (user, achievement) constraint emulated via a map, matching the real
// repository's insert-absorbs-conflict behavior.
type fakeAwardRepo struct {
	awarded  map[string]*progressdomain.UserAchievement
	byUser   map[shared.UserID][]*progressdomain.UserAchievement
	notified map[int64]bool
	nextID   int64
}

func newFakeAwardRepo() *fakeAwardRepo {
	return &fakeAwardRepo{
		awarded:  make(map[string]*progressdomain.UserAchievement),
		byUser:   make(map[shared.UserID][]*progressdomain.UserAchievement),
		notified: make(map[int64]bool),
	}
}

func (r *fakeAwardRepo) Award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.UserAchievement, bool, error) {
	k := progressKey(userID, achievementID)
	if existing, ok := r.awarded[k]; ok {
		return existing, false, nil
	}
	r.nextID++
	record := progressdomain.NewUserAchievement(userID, achievementID)
	record.ID = r.nextID
	r.awarded[k] = record
	r.byUser[userID] = append(r.byUser[userID], record)
	return record, true, nil
}
func (r *fakeAwardRepo) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progressdomain.UserAchievement, error) {
	record, ok := r.awarded[progressKey(userID, achievementID)]
	if !ok {
		return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "award not found")
	}
	return record, nil
}
func (r *fakeAwardRepo) GetByUser(ctx context.Context, userID shared.UserID) ([]*progressdomain.UserAchievement, error) {
	return r.byUser[userID], nil
}
func (r *fakeAwardRepo) MarkNotified(ctx context.Context, id int64) error {
	r.notified[id] = true
	return nil
}
func (r *fakeAwardRepo) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	return 0, nil
}

func TestService_MaybeAward_NotYetEligible(t *testing.T) {
	achievements := newFakeAchievementRepo(&catalogdomain.Achievement{ID: 1})
	progressRepo := newFakeProgressRepo()
	awards := newFakeAwardRepo()
	svc := NewService(achievements, progressRepo, awards, nil)

	_, err := progressRepo.Apply(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.ProgressValue(10), progressdomain.Inc(5))
	require.NoError(t, err)

	record, awarded, err := svc.MaybeAward(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	assert.False(t, awarded)
	assert.Nil(t, record)
}

func TestService_MaybeAward_NoProgressRow(t *testing.T) {
	svc := NewService(newFakeAchievementRepo(), newFakeProgressRepo(), newFakeAwardRepo(), nil)

	record, awarded, err := svc.MaybeAward(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	assert.False(t, awarded)
	assert.Nil(t, record)
}

func TestService_MaybeAward_EligiblePublishesEvent(t *testing.T) {
	achievement := &catalogdomain.Achievement{ID: 1, Name: "First Message"}
	achievements := newFakeAchievementRepo(achievement)
	progressRepo := newFakeProgressRepo()
	awards := newFakeAwardRepo()
	svc := NewService(achievements, progressRepo, awards, nil)

	_, err := progressRepo.Apply(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.ProgressValue(1), progressdomain.Set(1))
	require.NoError(t, err)

	record, awarded, err := svc.MaybeAward(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	require.True(t, awarded)
	require.NotNil(t, record)

	select {
	case event := <-svc.Events():
		assert.Equal(t, achievement, event.Achievement)
		assert.Equal(t, shared.GuildID("g1"), event.GuildID)
	default:
		t.Fatal("expected an AwardEvent to be published")
	}
}

func TestService_MaybeAward_IdempotentOnSecondCall(t *testing.T) {
	achievement := &catalogdomain.Achievement{ID: 1}
	achievements := newFakeAchievementRepo(achievement)
	progressRepo := newFakeProgressRepo()
	awards := newFakeAwardRepo()
	svc := NewService(achievements, progressRepo, awards, nil)

	_, err := progressRepo.Apply(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.ProgressValue(1), progressdomain.Set(1))
	require.NoError(t, err)

	_, awarded, err := svc.MaybeAward(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	require.True(t, awarded)
	<-svc.Events()

	_, awarded, err = svc.MaybeAward(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	assert.False(t, awarded, "second award attempt must be absorbed, not re-published")
}

func TestService_AwardDirectly_BypassesProgressCheck(t *testing.T) {
	achievement := &catalogdomain.Achievement{ID: 1}
	achievements := newFakeAchievementRepo(achievement)
	svc := NewService(achievements, newFakeProgressRepo(), newFakeAwardRepo(), nil)

	record, awarded, err := svc.AwardDirectly(context.Background(), shared.UserID("u1"), shared.AchievementID(1), shared.GuildID("g1"))
	require.NoError(t, err)
	assert.True(t, awarded)
	assert.NotNil(t, record)
}

func TestService_MarkNotified(t *testing.T) {
	awards := newFakeAwardRepo()
	svc := NewService(newFakeAchievementRepo(), newFakeProgressRepo(), awards, nil)

	require.NoError(t, svc.MarkNotified(context.Background(), 42))
	assert.True(t, awards.notified[42])
}
