package catalog

import (
	"context"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

// CategoryFilter narrows a category listing.
type CategoryFilter struct {
	ParentID   *shared.CategoryID // nil = no filter, matches NewCategoryID(0) for explicit roots
	ActiveOnly bool
}

// CategoryRepository persists the category tree.
type CategoryRepository interface {
	Create(ctx context.Context, category *Category) (*Category, error)
	GetByID(ctx context.Context, id shared.CategoryID) (*Category, error)
	GetByNameAndParent(ctx context.Context, name string, parentID shared.CategoryID) (*Category, error)
	Update(ctx context.Context, category *Category) error
	SoftDeleteSubtree(ctx context.Context, rootID shared.CategoryID) (affected int64, err error)

	// List returns categories matching filter, ordered by (display_order, name).
	List(ctx context.Context, filter CategoryFilter) ([]*Category, error)

	// Children returns the direct children of a category, ordered by (display_order, name).
	Children(ctx context.Context, parentID shared.CategoryID, activeOnly bool) ([]*Category, error)

	// Ancestors returns the chain of ancestor IDs from immediate parent up to
	// the root, used for cycle detection during re-parenting.
	Ancestors(ctx context.Context, id shared.CategoryID) ([]shared.CategoryID, error)

	// HasActiveChildren reports whether a category has any active child
	// categories or achievements, used to enforce delete_category's
	// HasChildren guard.
	HasActiveChildren(ctx context.Context, id shared.CategoryID) (bool, error)
}

// AchievementFilter narrows an achievement listing.
type AchievementFilter struct {
	CategoryID *shared.CategoryID
	Type       *AchievementType
	ActiveOnly bool
	Limit      int
	Offset     int
}

// AchievementRepository persists achievements.
type AchievementRepository interface {
	Create(ctx context.Context, achievement *Achievement) (*Achievement, error)
	GetByID(ctx context.Context, id shared.AchievementID) (*Achievement, error)
	Update(ctx context.Context, achievement *Achievement) error
	SoftDelete(ctx context.Context, id shared.AchievementID) error

	// List returns achievements matching filter.
	List(ctx context.Context, filter AchievementFilter) ([]*Achievement, error)

	// CountByCategory returns the number of achievements directly in a
	// category, counting only active ones when activeOnly is set.
	CountByCategory(ctx context.Context, categoryID shared.CategoryID, activeOnly bool) (int, error)

	// DeactivateByCategory soft-deletes every achievement in a category,
	// used when a category subtree is force-deleted.
	DeactivateByCategory(ctx context.Context, categoryID shared.CategoryID) (affected int64, err error)
}
