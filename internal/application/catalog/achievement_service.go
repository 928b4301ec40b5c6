package catalog

import (
	"context"

	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// AchievementService implements the achievement half of §4.B: create/update/
// delete, cascading to progress and award rows on delete.
type AchievementService struct {
	categories   catalogdomain.CategoryRepository
	achievements catalogdomain.AchievementRepository
	progress     progress.Repository
	awards       progress.AwardRepository
	guard        *AdminGuard
}

// SetAdminGuard enables the admin-token check ahead of every mutation. Call
// sites that never call this run unguarded, as before the guard existed.
func (s *AchievementService) SetAdminGuard(guard *AdminGuard) {
	s.guard = guard
}

// NewAchievementService wires an AchievementService against its repositories.
func NewAchievementService(
	categories catalogdomain.CategoryRepository,
	achievements catalogdomain.AchievementRepository,
	progressRepo progress.Repository,
	awardRepo progress.AwardRepository,
) *AchievementService {
	return &AchievementService{
		categories:   categories,
		achievements: achievements,
		progress:     progressRepo,
		awards:       awardRepo,
	}
}

// CreateAchievement creates a new achievement inside an active category.
func (s *AchievementService) CreateAchievement(ctx context.Context, params catalogdomain.NewAchievementParams) (*catalogdomain.Achievement, error) {
	if err := s.guard.Authorize(ctx); err != nil {
		return nil, err
	}

	category, err := s.categories.GetByID(ctx, params.CategoryID)
	if err != nil {
		return nil, err
	}
	if !category.IsActive {
		return nil, shared.NewDomainError("catalog", "CreateAchievement", shared.ErrParentMissing, "category is not active")
	}

	achievement, err := catalogdomain.NewAchievement(params)
	if err != nil {
		return nil, err
	}
	return s.achievements.Create(ctx, achievement)
}

// UpdateAchievement applies a partial patch to an existing achievement.
func (s *AchievementService) UpdateAchievement(ctx context.Context, id shared.AchievementID, patch catalogdomain.UpdatePatch) (*catalogdomain.Achievement, error) {
	if err := s.guard.Authorize(ctx); err != nil {
		return nil, err
	}

	achievement, err := s.achievements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := achievement.Apply(patch); err != nil {
		return nil, err
	}
	if err := s.achievements.Update(ctx, achievement); err != nil {
		return nil, err
	}
	return achievement, nil
}

// DeleteAchievement soft-deletes an achievement and cascades to every user's
// progress and award rows for it, since those would otherwise reference a
// retired definition.
func (s *AchievementService) DeleteAchievement(ctx context.Context, id shared.AchievementID) error {
	if err := s.guard.Authorize(ctx); err != nil {
		return err
	}

	achievement, err := s.achievements.GetByID(ctx, id)
	if err != nil {
		return err
	}
	achievement.Deactivate()
	if err := s.achievements.Update(ctx, achievement); err != nil {
		return err
	}
	if err := s.achievements.SoftDelete(ctx, id); err != nil {
		return err
	}
	if _, err := s.progress.DeleteByAchievement(ctx, id); err != nil {
		return err
	}
	if _, err := s.awards.DeleteByAchievement(ctx, id); err != nil {
		return err
	}
	return nil
}

// ListAchievements returns achievements matching filter.
func (s *AchievementService) ListAchievements(ctx context.Context, filter catalogdomain.AchievementFilter) ([]*catalogdomain.Achievement, error) {
	return s.achievements.List(ctx, filter)
}

// GetAchievement returns a single achievement by ID.
func (s *AchievementService) GetAchievement(ctx context.Context, id shared.AchievementID) (*catalogdomain.Achievement, error) {
	return s.achievements.GetByID(ctx, id)
}
