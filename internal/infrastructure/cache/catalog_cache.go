package cache

import (
	"context"
	"fmt"

	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// Key namespaces within the category: and achievement: prefixes. Listing
// keys (children/root) live under their own sub-namespace so a tree-shape
// mutation can invalidate every listing without touching by-id entries.
const (
	categoryIDNamespace    = "id:"
	categoryListNamespace  = "children:"
	achievementIDNamespace = "id:"
)

func categoryByIDKey(id shared.CategoryID) string {
	return fmt.Sprintf("%s%d", categoryIDNamespace, id)
}

// childrenKey covers both "children_by_parent" and "root_categories" (the
// latter is simply parentID == the root sentinel), since both are the same
// Children query against a different parent.
func childrenKey(parentID shared.CategoryID, activeOnly bool) string {
	return fmt.Sprintf("%s%d:%v", categoryListNamespace, parentID, activeOnly)
}

func achievementByIDKey(id shared.AchievementID) string {
	return fmt.Sprintf("%s%d", achievementIDNamespace, id)
}

// CachedCategoryRepository decorates a CategoryRepository with the §4.B/§4.G
// read-through cache described for `category_by_id`, `root_categories`, and
// `children_by_parent`. Every mutating call invalidates the affected keys
// immediately after the underlying write commits; there is no negative
// caching, so a reader racing a writer simply falls back to storage.
type CachedCategoryRepository struct {
	catalogdomain.CategoryRepository
	cache *Manager
}

// NewCachedCategoryRepository wraps repo with cache.
func NewCachedCategoryRepository(repo catalogdomain.CategoryRepository, cache *Manager) *CachedCategoryRepository {
	return &CachedCategoryRepository{CategoryRepository: repo, cache: cache}
}

// GetByID serves category_by_id from cache, falling back to repo on a miss.
func (r *CachedCategoryRepository) GetByID(ctx context.Context, id shared.CategoryID) (*catalogdomain.Category, error) {
	var category catalogdomain.Category
	err := r.cache.Fetch(ctx, CacheTypeCategory, categoryByIDKey(id), &category, func(ctx context.Context) (interface{}, error) {
		return r.CategoryRepository.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// Children serves root_categories/children_by_parent from cache.
func (r *CachedCategoryRepository) Children(ctx context.Context, parentID shared.CategoryID, activeOnly bool) ([]*catalogdomain.Category, error) {
	var children []*catalogdomain.Category
	err := r.cache.Fetch(ctx, CacheTypeCategory, childrenKey(parentID, activeOnly), &children, func(ctx context.Context) (interface{}, error) {
		return r.CategoryRepository.Children(ctx, parentID, activeOnly)
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// Create invalidates every listing so a subsequent read of the new
// category's parent sees it, since the listing cache has no way to append to
// an existing entry.
func (r *CachedCategoryRepository) Create(ctx context.Context, category *catalogdomain.Category) (*catalogdomain.Category, error) {
	created, err := r.CategoryRepository.Create(ctx, category)
	if err != nil {
		return nil, err
	}
	r.invalidateListings(ctx)
	return created, nil
}

// Update invalidates the category's by-id entry and every listing, since a
// rename/reparent/deactivate can change where it sorts or whether it still
// belongs under its old parent.
func (r *CachedCategoryRepository) Update(ctx context.Context, category *catalogdomain.Category) error {
	if err := r.CategoryRepository.Update(ctx, category); err != nil {
		return err
	}
	_ = r.cache.Invalidate(ctx, CacheTypeCategory, categoryByIDKey(category.ID))
	r.invalidateListings(ctx)
	return nil
}

// SoftDeleteSubtree deactivates an entire subtree in one call, so every
// by-id and listing entry is invalidated rather than tracked individually.
func (r *CachedCategoryRepository) SoftDeleteSubtree(ctx context.Context, rootID shared.CategoryID) (int64, error) {
	affected, err := r.CategoryRepository.SoftDeleteSubtree(ctx, rootID)
	if err != nil {
		return affected, err
	}
	_ = r.cache.Invalidate(ctx, CacheTypeCategory, categoryIDNamespace)
	r.invalidateListings(ctx)
	return affected, nil
}

func (r *CachedCategoryRepository) invalidateListings(ctx context.Context) {
	_ = r.cache.Invalidate(ctx, CacheTypeCategory, categoryListNamespace)
}

// CachedAchievementRepository decorates an AchievementRepository with the
// §4.B/§4.G achievement_by_id read-through cache.
type CachedAchievementRepository struct {
	catalogdomain.AchievementRepository
	cache *Manager
}

// NewCachedAchievementRepository wraps repo with cache.
func NewCachedAchievementRepository(repo catalogdomain.AchievementRepository, cache *Manager) *CachedAchievementRepository {
	return &CachedAchievementRepository{AchievementRepository: repo, cache: cache}
}

// GetByID serves achievement_by_id from cache, falling back to repo on a miss.
func (r *CachedAchievementRepository) GetByID(ctx context.Context, id shared.AchievementID) (*catalogdomain.Achievement, error) {
	var achievement catalogdomain.Achievement
	err := r.cache.Fetch(ctx, CacheTypeAchievement, achievementByIDKey(id), &achievement, func(ctx context.Context) (interface{}, error) {
		return r.AchievementRepository.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &achievement, nil
}

// Update invalidates the achievement's by-id entry after a successful write.
func (r *CachedAchievementRepository) Update(ctx context.Context, achievement *catalogdomain.Achievement) error {
	if err := r.AchievementRepository.Update(ctx, achievement); err != nil {
		return err
	}
	return r.cache.Invalidate(ctx, CacheTypeAchievement, achievementByIDKey(achievement.ID))
}

// SoftDelete invalidates the achievement's by-id entry after a successful delete.
func (r *CachedAchievementRepository) SoftDelete(ctx context.Context, id shared.AchievementID) error {
	if err := r.AchievementRepository.SoftDelete(ctx, id); err != nil {
		return err
	}
	return r.cache.Invalidate(ctx, CacheTypeAchievement, achievementByIDKey(id))
}

// DeactivateByCategory touches every achievement in a category at once, so
// rather than tracking which IDs were affected it flushes the whole
// achievement_by_id namespace.
func (r *CachedAchievementRepository) DeactivateByCategory(ctx context.Context, categoryID shared.CategoryID) (int64, error) {
	affected, err := r.AchievementRepository.DeactivateByCategory(ctx, categoryID)
	if err != nil {
		return affected, err
	}
	_ = r.cache.Invalidate(ctx, CacheTypeAchievement, achievementIDNamespace)
	return affected, nil
}
