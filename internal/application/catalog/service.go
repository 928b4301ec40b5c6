// Package catalog contains the application services that enforce the
// catalog's write-side invariants (depth, cycle, name-uniqueness) on top of
// the domain model, and serve the read-side tree queries.
package catalog

import (
	"context"
	"fmt"

	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// CategoryService implements the category half of §4.B: create/update/move/
// delete with tree-shape invariants enforced before any write.
type CategoryService struct {
	categories   catalogdomain.CategoryRepository
	achievements catalogdomain.AchievementRepository
	guard        *AdminGuard
}

// NewCategoryService wires a CategoryService against its repositories.
func NewCategoryService(categories catalogdomain.CategoryRepository, achievements catalogdomain.AchievementRepository) *CategoryService {
	return &CategoryService{categories: categories, achievements: achievements}
}

// SetAdminGuard enables the admin-token check ahead of every mutation. Call
// sites that never call this run unguarded, as before the guard existed.
func (s *CategoryService) SetAdminGuard(guard *AdminGuard) {
	s.guard = guard
}

// CreateCategoryParams is the input to CreateCategory.
type CreateCategoryParams struct {
	Name         string
	Description  string
	ParentID     shared.CategoryID
	DisplayOrder int
	Icon         string
	IsExpanded   bool
}

// CreateCategory creates a root or child category, rejecting duplicate
// sibling names and depths beyond MaxCategoryDepth.
func (s *CategoryService) CreateCategory(ctx context.Context, params CreateCategoryParams) (*catalogdomain.Category, error) {
	if err := s.guard.Authorize(ctx); err != nil {
		return nil, err
	}

	parentLevel := shared.RootDepth
	if !params.ParentID.IsRoot() {
		parent, err := s.categories.GetByID(ctx, params.ParentID)
		if err != nil {
			return nil, fmt.Errorf("resolving parent category: %w", err)
		}
		parentLevel = parent.Level
	}

	existing, err := s.categories.GetByNameAndParent(ctx, params.Name, params.ParentID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("checking sibling name uniqueness: %w", err)
	}
	if existing != nil {
		return nil, shared.NewDomainError("catalog", "CreateCategory", shared.ErrDuplicateName, "a sibling category with this name already exists")
	}

	category, err := catalogdomain.NewCategory(catalogdomain.NewCategoryParams{
		Name:         params.Name,
		Description:  params.Description,
		ParentID:     params.ParentID,
		ParentLevel:  parentLevel,
		DisplayOrder: params.DisplayOrder,
		Icon:         params.Icon,
		IsExpanded:   params.IsExpanded,
	})
	if err != nil {
		return nil, err
	}

	return s.categories.Create(ctx, category)
}

// RenameCategory updates a category's display name.
func (s *CategoryService) RenameCategory(ctx context.Context, id shared.CategoryID, name string) (*catalogdomain.Category, error) {
	if err := s.guard.Authorize(ctx); err != nil {
		return nil, err
	}

	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := category.Rename(name); err != nil {
		return nil, err
	}
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// MoveCategory re-parents a category, rejecting moves that would create a
// cycle or exceed the maximum tree depth.
func (s *CategoryService) MoveCategory(ctx context.Context, id, newParentID shared.CategoryID) (*catalogdomain.Category, error) {
	if err := s.guard.Authorize(ctx); err != nil {
		return nil, err
	}

	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	newLevel := shared.RootDepth
	if !newParentID.IsRoot() {
		newParent, err := s.categories.GetByID(ctx, newParentID)
		if err != nil {
			return nil, fmt.Errorf("resolving new parent category: %w", err)
		}
		ancestors, err := s.categories.Ancestors(ctx, newParentID)
		if err != nil {
			return nil, fmt.Errorf("resolving ancestor chain: %w", err)
		}
		fullChain := append([]shared.CategoryID{newParentID}, ancestors...)
		if category.WouldCycle(newParentID, fullChain) {
			return nil, shared.NewDomainError("catalog", "MoveCategory", shared.ErrCycleDetected, "move would create a cycle in the category tree")
		}
		newLevel, err = newParent.Level.Child()
		if err != nil {
			return nil, shared.WrapError("catalog", "MoveCategory", shared.ErrDepthExceeded, "move would exceed maximum category depth", err)
		}
	}

	if err := category.Reparent(newParentID, newLevel); err != nil {
		return nil, err
	}
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory soft-deletes a category. By default it refuses to delete a
// category with active children (sub-categories or achievements); force
// cascades the deactivation to the whole subtree.
func (s *CategoryService) DeleteCategory(ctx context.Context, id shared.CategoryID, force bool) error {
	if err := s.guard.Authorize(ctx); err != nil {
		return err
	}

	hasChildren, err := s.categories.HasActiveChildren(ctx, id)
	if err != nil {
		return err
	}
	if hasChildren && !force {
		return shared.NewDomainError("catalog", "DeleteCategory", shared.ErrHasChildren, "category has active children; pass force to cascade")
	}

	if force {
		subtree := []shared.CategoryID{id}
		for i := 0; i < len(subtree); i++ {
			children, err := s.categories.Children(ctx, subtree[i], false)
			if err != nil {
				return fmt.Errorf("resolving category subtree: %w", err)
			}
			for _, child := range children {
				subtree = append(subtree, child.ID)
			}
		}
		for _, categoryID := range subtree {
			if _, err := s.achievements.DeactivateByCategory(ctx, categoryID); err != nil {
				return fmt.Errorf("deactivating achievements in subtree: %w", err)
			}
		}
		if _, err := s.categories.SoftDeleteSubtree(ctx, id); err != nil {
			return fmt.Errorf("deactivating category subtree: %w", err)
		}
		return nil
	}

	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return err
	}
	category.Deactivate()
	return s.categories.Update(ctx, category)
}

// ListCategories returns categories matching filter.
func (s *CategoryService) ListCategories(ctx context.Context, filter catalogdomain.CategoryFilter) ([]*catalogdomain.Category, error) {
	return s.categories.List(ctx, filter)
}

// CategoryNode is one node of a materialized category tree returned by GetTree.
type CategoryNode struct {
	Category *catalogdomain.Category
	Children []*CategoryNode
}

// GetTree materializes the subtree rooted at rootID (or the whole forest when
// rootID is the root sentinel) by walking Children recursively.
func (s *CategoryService) GetTree(ctx context.Context, rootID shared.CategoryID, activeOnly bool) ([]*CategoryNode, error) {
	children, err := s.categories.Children(ctx, rootID, activeOnly)
	if err != nil {
		return nil, err
	}

	nodes := make([]*CategoryNode, 0, len(children))
	for _, child := range children {
		subtree, err := s.GetTree(ctx, child.ID, activeOnly)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &CategoryNode{Category: child, Children: subtree})
	}
	return nodes, nil
}

// GetCategoryPath returns the chain from root down to id, root first.
func (s *CategoryService) GetCategoryPath(ctx context.Context, id shared.CategoryID) ([]*catalogdomain.Category, error) {
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ancestorIDs, err := s.categories.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}

	path := make([]*catalogdomain.Category, 0, len(ancestorIDs)+1)
	for i := len(ancestorIDs) - 1; i >= 0; i-- {
		ancestor, err := s.categories.GetByID(ctx, ancestorIDs[i])
		if err != nil {
			return nil, err
		}
		path = append(path, ancestor)
	}
	path = append(path, category)
	return path, nil
}
