// Package catalog contains the domain model for the hierarchical achievement
// catalog: categories arranged in a bounded-depth tree, and the achievements
// that live inside them.
package catalog

import (
	"strings"
	"time"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY
// ══════════════════════════════════════════════════════════════════════════════

// Category is a node in the achievement category tree.
type Category struct {
	ID          shared.CategoryID
	Name        string
	Description string
	ParentID    shared.CategoryID // 0 means root
	Level       shared.CategoryDepth
	DisplayOrder int
	Icon        string
	IsExpanded  bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewCategoryParams holds the parameters to create a category.
type NewCategoryParams struct {
	Name        string
	Description string
	ParentID    shared.CategoryID
	ParentLevel shared.CategoryDepth // level of the parent, ignored when ParentID is root
	DisplayOrder int
	Icon        string
	IsExpanded  bool
}

// NewCategory creates a new root or child category with validation. Depth is
// derived from the parent's level, never supplied directly by the caller.
func NewCategory(params NewCategoryParams) (*Category, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, shared.NewDomainError("catalog", "NewCategory", shared.ErrEmptyValue, "category name cannot be empty")
	}

	level := shared.RootDepth
	if !params.ParentID.IsRoot() {
		var err error
		level, err = params.ParentLevel.Child()
		if err != nil {
			return nil, shared.WrapError("catalog", "NewCategory", shared.ErrDepthExceeded, "category depth exceeded", err)
		}
	}

	now := time.Now().UTC()
	return &Category{
		Name:         name,
		Description:  strings.TrimSpace(params.Description),
		ParentID:     params.ParentID,
		Level:        level,
		DisplayOrder: params.DisplayOrder,
		Icon:         params.Icon,
		IsExpanded:   params.IsExpanded,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsRootCategory reports whether this category has no parent.
func (c *Category) IsRootCategory() bool {
	return c.ParentID.IsRoot()
}

// WouldCycle reports whether re-parenting this category under newParent
// would introduce a cycle, given the chain of ancestor IDs of newParent
// (newParent itself first, root last). A category becomes its own ancestor
// if it appears anywhere in that chain.
func (c *Category) WouldCycle(newParent shared.CategoryID, newParentAncestors []shared.CategoryID) bool {
	if newParent == c.ID {
		return true
	}
	for _, ancestorID := range newParentAncestors {
		if ancestorID == c.ID {
			return true
		}
	}
	return false
}

// Rename updates the category's display name.
func (c *Category) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("catalog", "Rename", shared.ErrEmptyValue, "category name cannot be empty")
	}
	c.Name = name
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Reparent moves the category under a new parent at the given level. Callers
// are responsible for cycle detection (WouldCycle) before calling this.
func (c *Category) Reparent(newParent shared.CategoryID, newLevel shared.CategoryDepth) error {
	if !newLevel.IsValid() {
		return shared.NewDomainError("catalog", "Reparent", shared.ErrDepthExceeded, "category depth exceeded")
	}
	c.ParentID = newParent
	c.Level = newLevel
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Deactivate soft-deletes the category. Cascading to children and
// achievements is an application-layer concern (CategoryService.DeleteCategory).
func (c *Category) Deactivate() {
	c.IsActive = false
	c.UpdatedAt = time.Now().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT TYPE & CRITERIA
// ══════════════════════════════════════════════════════════════════════════════

// AchievementType identifies how an achievement's progress is evaluated.
type AchievementType string

const (
	// TypeCounter tracks a monotonically increasing count against a target.
	TypeCounter AchievementType = "COUNTER"

	// TypeMilestone tracks a single numeric threshold on a named measure.
	TypeMilestone AchievementType = "MILESTONE"

	// TypeTimeBased tracks duration or repetition across a rolling window.
	TypeTimeBased AchievementType = "TIME_BASED"

	// TypeConditional is evaluated by a registered structured-predicate evaluator.
	TypeConditional AchievementType = "CONDITIONAL"
)

// IsValid checks that the achievement type is recognized.
func (t AchievementType) IsValid() bool {
	switch t {
	case TypeCounter, TypeMilestone, TypeTimeBased, TypeConditional:
		return true
	default:
		return false
	}
}

// Criteria is the opaque, type-specific achievement configuration. Only the
// fields relevant to the achievement's Type are expected to be populated;
// the evaluator registry (internal/evaluator) interprets this per Type.
type Criteria struct {
	TargetValue   float64                `json:"target_value,omitempty"`
	CounterField  string                 `json:"counter_field,omitempty"`
	MilestoneType string                 `json:"milestone_type,omitempty"`
	TimeUnit      string                 `json:"time_unit,omitempty"`
	Window        time.Duration          `json:"window,omitempty"`
	Expr          map[string]interface{} `json:"expr,omitempty"`
}

// RequiresTarget reports whether the type is progress-bearing and therefore
// requires a positive TargetValue (COUNTER, MILESTONE, TIME_BASED). A
// CONDITIONAL achievement may or may not define one.
func (t AchievementType) RequiresTarget() bool {
	switch t {
	case TypeCounter, TypeMilestone, TypeTimeBased:
		return true
	default:
		return false
	}
}

// Validate checks that the criteria shape matches what the achievement type
// requires.
func (c Criteria) Validate(achType AchievementType) error {
	if achType.RequiresTarget() && c.TargetValue <= 0 {
		return shared.NewDomainError("catalog", "Criteria.Validate", shared.ErrValidation, "target_value must be positive for progress-bearing achievements")
	}
	switch achType {
	case TypeCounter:
		if c.CounterField == "" {
			return shared.NewDomainError("catalog", "Criteria.Validate", shared.ErrValidation, "counter_field is required for COUNTER achievements")
		}
	case TypeMilestone:
		if c.MilestoneType == "" {
			return shared.NewDomainError("catalog", "Criteria.Validate", shared.ErrValidation, "milestone_type is required for MILESTONE achievements")
		}
	case TypeTimeBased:
		if c.TimeUnit == "" {
			return shared.NewDomainError("catalog", "Criteria.Validate", shared.ErrValidation, "time_unit is required for TIME_BASED achievements")
		}
	case TypeConditional:
		if len(c.Expr) == 0 {
			return shared.NewDomainError("catalog", "Criteria.Validate", shared.ErrValidation, "expr is required for CONDITIONAL achievements")
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

const maxRoleRewardLen = 64

// Achievement is a named, categorized goal with type-specific criteria and a
// reward.
type Achievement struct {
	ID          shared.AchievementID
	Name        string
	Description string
	CategoryID  shared.CategoryID
	Type        AchievementType
	Criteria    Criteria
	Points      shared.Points
	Badge       string
	RoleReward  string
	IsHidden    bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewAchievementParams holds the parameters to create an achievement.
type NewAchievementParams struct {
	Name        string
	Description string
	CategoryID  shared.CategoryID
	Type        AchievementType
	Criteria    Criteria
	Points      int
	Badge       string
	RoleReward  string
	IsHidden    bool
}

// NewAchievement creates a new achievement with validation.
func NewAchievement(params NewAchievementParams) (*Achievement, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, shared.NewDomainError("catalog", "NewAchievement", shared.ErrEmptyValue, "achievement name cannot be empty")
	}
	if !params.CategoryID.IsValid() {
		return nil, shared.NewDomainError("catalog", "NewAchievement", shared.ErrParentMissing, "achievement must belong to a category")
	}
	if !params.Type.IsValid() {
		return nil, shared.NewDomainError("catalog", "NewAchievement", shared.ErrInvalidEntity, "unrecognized achievement type")
	}
	if err := params.Criteria.Validate(params.Type); err != nil {
		return nil, err
	}
	points, err := shared.NewPoints(params.Points)
	if err != nil {
		return nil, err
	}
	if len(params.RoleReward) > maxRoleRewardLen {
		return nil, shared.NewDomainError("catalog", "NewAchievement", shared.ErrValueOutOfRange, "role_reward exceeds maximum length")
	}

	now := time.Now().UTC()
	return &Achievement{
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		CategoryID:  params.CategoryID,
		Type:        params.Type,
		Criteria:    params.Criteria,
		Points:      points,
		Badge:       params.Badge,
		RoleReward:  params.RoleReward,
		IsHidden:    params.IsHidden,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdatePatch describes a partial update to an achievement; nil fields are
// left unchanged. Criteria and Type are always updated together so the two
// never drift out of sync.
type UpdatePatch struct {
	Name        *string
	Description *string
	Type        *AchievementType
	Criteria    *Criteria
	Points      *int
	Badge       *string
	RoleReward  *string
	IsHidden    *bool
}

// Apply applies a patch to the achievement, re-validating criteria against
// type whenever either changes.
func (a *Achievement) Apply(patch UpdatePatch) error {
	newType := a.Type
	newCriteria := a.Criteria

	if patch.Type != nil {
		newType = *patch.Type
	}
	if patch.Criteria != nil {
		newCriteria = *patch.Criteria
	}
	if patch.Type != nil || patch.Criteria != nil {
		if !newType.IsValid() {
			return shared.NewDomainError("catalog", "Achievement.Apply", shared.ErrInvalidEntity, "unrecognized achievement type")
		}
		if err := newCriteria.Validate(newType); err != nil {
			return err
		}
		a.Type = newType
		a.Criteria = newCriteria
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return shared.NewDomainError("catalog", "Achievement.Apply", shared.ErrEmptyValue, "achievement name cannot be empty")
		}
		a.Name = name
	}
	if patch.Description != nil {
		a.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Points != nil {
		points, err := shared.NewPoints(*patch.Points)
		if err != nil {
			return err
		}
		a.Points = points
	}
	if patch.Badge != nil {
		a.Badge = *patch.Badge
	}
	if patch.RoleReward != nil {
		if len(*patch.RoleReward) > maxRoleRewardLen {
			return shared.NewDomainError("catalog", "Achievement.Apply", shared.ErrValueOutOfRange, "role_reward exceeds maximum length")
		}
		a.RoleReward = *patch.RoleReward
	}
	if patch.IsHidden != nil {
		a.IsHidden = *patch.IsHidden
	}

	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Deactivate soft-deletes the achievement. Cascading to user progress and
// awards is an application-layer concern (AchievementService.DeleteAchievement).
func (a *Achievement) Deactivate() {
	a.IsActive = false
	a.UpdatedAt = time.Now().UTC()
}

// HasRoleReward reports whether earning this achievement should trigger a
// role grant side effect (handled by an external collaborator).
func (a *Achievement) HasRoleReward() bool {
	return a.RoleReward != ""
}
