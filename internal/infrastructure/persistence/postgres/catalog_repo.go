package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CategoryRepository implements catalog.CategoryRepository for PostgreSQL.
type CategoryRepository struct {
	conn *Connection
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(conn *Connection) *CategoryRepository {
	return &CategoryRepository{conn: conn}
}

func (r *CategoryRepository) Create(ctx context.Context, c *catalog.Category) (*catalog.Category, error) {
	query := `
		INSERT INTO categories (name, description, parent_id, level, display_order, icon, is_expanded, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := r.conn.QueryRow(ctx, query,
		c.Name, c.Description, c.ParentID.Int64(), c.Level.Int(), c.DisplayOrder, c.Icon, c.IsExpanded, c.IsActive, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.NewDomainError("catalog", "Create", shared.ErrDuplicateName, "a sibling category with this name already exists")
		}
		return nil, shared.WrapError("catalog", "Create", shared.ErrStorage, "inserting category", err)
	}
	return c, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id shared.CategoryID) (*catalog.Category, error) {
	query := `
		SELECT id, name, description, parent_id, level, display_order, icon, is_expanded, is_active, created_at, updated_at
		FROM categories WHERE id = $1
	`
	return r.scanCategory(r.conn.QueryRow(ctx, query, id.Int64()))
}

func (r *CategoryRepository) GetByNameAndParent(ctx context.Context, name string, parentID shared.CategoryID) (*catalog.Category, error) {
	query := `
		SELECT id, name, description, parent_id, level, display_order, icon, is_expanded, is_active, created_at, updated_at
		FROM categories WHERE name = $1 AND parent_id = $2
	`
	return r.scanCategory(r.conn.QueryRow(ctx, query, name, parentID.Int64()))
}

func (r *CategoryRepository) Update(ctx context.Context, c *catalog.Category) error {
	query := `
		UPDATE categories
		SET name = $1, description = $2, parent_id = $3, level = $4, display_order = $5,
		    icon = $6, is_expanded = $7, is_active = $8, updated_at = $9
		WHERE id = $10
	`
	tag, err := r.conn.Exec(ctx, query,
		c.Name, c.Description, c.ParentID.Int64(), c.Level.Int(), c.DisplayOrder, c.Icon, c.IsExpanded, c.IsActive, c.UpdatedAt, c.ID.Int64(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("catalog", "Update", shared.ErrDuplicateName, "a sibling category with this name already exists")
		}
		return shared.WrapError("catalog", "Update", shared.ErrStorage, "updating category", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("catalog", "Update", shared.ErrNotFound, "category not found")
	}
	return nil
}

func (r *CategoryRepository) SoftDeleteSubtree(ctx context.Context, rootID shared.CategoryID) (int64, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM categories WHERE id = $1
			UNION ALL
			SELECT c.id FROM categories c JOIN subtree s ON c.parent_id = s.id
		)
		UPDATE categories SET is_active = FALSE, updated_at = NOW()
		WHERE id IN (SELECT id FROM subtree) AND is_active
	`
	tag, err := r.conn.Exec(ctx, query, rootID.Int64())
	if err != nil {
		return 0, shared.WrapError("catalog", "SoftDeleteSubtree", shared.ErrStorage, "deactivating category subtree", err)
	}
	return tag.RowsAffected(), nil
}

func (r *CategoryRepository) List(ctx context.Context, filter catalog.CategoryFilter) ([]*catalog.Category, error) {
	query := `
		SELECT id, name, description, parent_id, level, display_order, icon, is_expanded, is_active, created_at, updated_at
		FROM categories WHERE ($1::bigint IS NULL OR parent_id = $1) AND (NOT $2 OR is_active)
		ORDER BY display_order, name
	`
	var parentID *int64
	if filter.ParentID != nil {
		v := filter.ParentID.Int64()
		parentID = &v
	}
	rows, err := r.conn.Query(ctx, query, parentID, filter.ActiveOnly)
	if err != nil {
		return nil, shared.WrapError("catalog", "List", shared.ErrStorage, "listing categories", err)
	}
	defer rows.Close()
	return r.scanCategories(rows)
}

func (r *CategoryRepository) Children(ctx context.Context, parentID shared.CategoryID, activeOnly bool) ([]*catalog.Category, error) {
	query := `
		SELECT id, name, description, parent_id, level, display_order, icon, is_expanded, is_active, created_at, updated_at
		FROM categories WHERE parent_id = $1 AND (NOT $2 OR is_active)
		ORDER BY display_order, name
	`
	rows, err := r.conn.Query(ctx, query, parentID.Int64(), activeOnly)
	if err != nil {
		return nil, shared.WrapError("catalog", "Children", shared.ErrStorage, "listing child categories", err)
	}
	defer rows.Close()
	return r.scanCategories(rows)
}

func (r *CategoryRepository) Ancestors(ctx context.Context, id shared.CategoryID) ([]shared.CategoryID, error) {
	query := `
		WITH RECURSIVE ancestry AS (
			SELECT id, parent_id FROM categories WHERE id = $1
			UNION ALL
			SELECT c.id, c.parent_id FROM categories c JOIN ancestry a ON c.id = a.parent_id
		)
		SELECT id FROM ancestry WHERE id != $1
	`
	rows, err := r.conn.Query(ctx, query, id.Int64())
	if err != nil {
		return nil, shared.WrapError("catalog", "Ancestors", shared.ErrStorage, "resolving category ancestors", err)
	}
	defer rows.Close()

	var ancestors []shared.CategoryID
	for rows.Next() {
		var raw int64
		if err := rows.Scan(&raw); err != nil {
			return nil, shared.WrapError("catalog", "Ancestors", shared.ErrStorage, "scanning ancestor row", err)
		}
		ancestors = append(ancestors, shared.CategoryID(raw))
	}
	return ancestors, rows.Err()
}

func (r *CategoryRepository) HasActiveChildren(ctx context.Context, id shared.CategoryID) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM categories WHERE parent_id = $1 AND is_active)
		OR EXISTS(SELECT 1 FROM achievements WHERE category_id = $1 AND is_active)
	`
	var has bool
	if err := r.conn.QueryRow(ctx, query, id.Int64()).Scan(&has); err != nil {
		return false, shared.WrapError("catalog", "HasActiveChildren", shared.ErrStorage, "checking active children", err)
	}
	return has, nil
}

func (r *CategoryRepository) scanCategory(row pgx.Row) (*catalog.Category, error) {
	var c catalog.Category
	var id, parentID int64
	var level int
	if err := row.Scan(&id, &c.Name, &c.Description, &parentID, &level, &c.DisplayOrder, &c.Icon, &c.IsExpanded, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("catalog", "scanCategory", shared.ErrNotFound, "category not found")
		}
		return nil, shared.WrapError("catalog", "scanCategory", shared.ErrStorage, "scanning category row", err)
	}
	c.ID = shared.CategoryID(id)
	c.ParentID = shared.CategoryID(parentID)
	c.Level = shared.CategoryDepth(level)
	return &c, nil
}

func (r *CategoryRepository) scanCategories(rows pgx.Rows) ([]*catalog.Category, error) {
	var categories []*catalog.Category
	for rows.Next() {
		var c catalog.Category
		var id, parentID int64
		var level int
		if err := rows.Scan(&id, &c.Name, &c.Description, &parentID, &level, &c.DisplayOrder, &c.Icon, &c.IsExpanded, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, shared.WrapError("catalog", "scanCategories", shared.ErrStorage, "scanning category row", err)
		}
		c.ID = shared.CategoryID(id)
		c.ParentID = shared.CategoryID(parentID)
		c.Level = shared.CategoryDepth(level)
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements catalog.AchievementRepository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

func (r *AchievementRepository) Create(ctx context.Context, a *catalog.Achievement) (*catalog.Achievement, error) {
	criteriaJSON, err := json.Marshal(a.Criteria)
	if err != nil {
		return nil, shared.WrapError("catalog", "Create", shared.ErrValidation, "marshaling criteria", err)
	}

	query := `
		INSERT INTO achievements (name, description, category_id, type, criteria, points, badge, role_reward, is_hidden, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err = r.conn.QueryRow(ctx, query,
		a.Name, a.Description, a.CategoryID.Int64(), string(a.Type), criteriaJSON, a.Points.Int(), a.Badge, a.RoleReward, a.IsHidden, a.IsActive, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return nil, shared.WrapError("catalog", "Create", shared.ErrStorage, "inserting achievement", err)
	}
	return a, nil
}

func (r *AchievementRepository) GetByID(ctx context.Context, id shared.AchievementID) (*catalog.Achievement, error) {
	query := `
		SELECT id, name, description, category_id, type, criteria, points, badge, role_reward, is_hidden, is_active, created_at, updated_at
		FROM achievements WHERE id = $1
	`
	return r.scanAchievement(r.conn.QueryRow(ctx, query, id.Int64()))
}

func (r *AchievementRepository) Update(ctx context.Context, a *catalog.Achievement) error {
	criteriaJSON, err := json.Marshal(a.Criteria)
	if err != nil {
		return shared.WrapError("catalog", "Update", shared.ErrValidation, "marshaling criteria", err)
	}

	query := `
		UPDATE achievements
		SET name = $1, description = $2, type = $3, criteria = $4, points = $5,
		    badge = $6, role_reward = $7, is_hidden = $8, is_active = $9, updated_at = $10
		WHERE id = $11
	`
	tag, err := r.conn.Exec(ctx, query,
		a.Name, a.Description, string(a.Type), criteriaJSON, a.Points.Int(), a.Badge, a.RoleReward, a.IsHidden, a.IsActive, a.UpdatedAt, a.ID.Int64(),
	)
	if err != nil {
		return shared.WrapError("catalog", "Update", shared.ErrStorage, "updating achievement", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("catalog", "Update", shared.ErrNotFound, "achievement not found")
	}
	return nil
}

func (r *AchievementRepository) SoftDelete(ctx context.Context, id shared.AchievementID) error {
	tag, err := r.conn.Exec(ctx, `UPDATE achievements SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id.Int64())
	if err != nil {
		return shared.WrapError("catalog", "SoftDelete", shared.ErrStorage, "deactivating achievement", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("catalog", "SoftDelete", shared.ErrNotFound, "achievement not found")
	}
	return nil
}

func (r *AchievementRepository) List(ctx context.Context, filter catalog.AchievementFilter) ([]*catalog.Achievement, error) {
	query := `
		SELECT id, name, description, category_id, type, criteria, points, badge, role_reward, is_hidden, is_active, created_at, updated_at
		FROM achievements
		WHERE ($1::bigint IS NULL OR category_id = $1)
		  AND ($2::text IS NULL OR type = $2)
		  AND (NOT $3 OR is_active)
		ORDER BY id
		LIMIT $4 OFFSET $5
	`
	var categoryID *int64
	if filter.CategoryID != nil {
		v := filter.CategoryID.Int64()
		categoryID = &v
	}
	var achType *string
	if filter.Type != nil {
		v := string(*filter.Type)
		achType = &v
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.conn.Query(ctx, query, categoryID, achType, filter.ActiveOnly, limit, filter.Offset)
	if err != nil {
		return nil, shared.WrapError("catalog", "List", shared.ErrStorage, "listing achievements", err)
	}
	defer rows.Close()

	var achievements []*catalog.Achievement
	for rows.Next() {
		a, err := r.scanAchievementRow(rows)
		if err != nil {
			return nil, err
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

func (r *AchievementRepository) CountByCategory(ctx context.Context, categoryID shared.CategoryID, activeOnly bool) (int, error) {
	query := `SELECT count(*) FROM achievements WHERE category_id = $1 AND (NOT $2 OR is_active)`
	var count int
	if err := r.conn.QueryRow(ctx, query, categoryID.Int64(), activeOnly).Scan(&count); err != nil {
		return 0, shared.WrapError("catalog", "CountByCategory", shared.ErrStorage, "counting achievements", err)
	}
	return count, nil
}

func (r *AchievementRepository) DeactivateByCategory(ctx context.Context, categoryID shared.CategoryID) (int64, error) {
	tag, err := r.conn.Exec(ctx, `UPDATE achievements SET is_active = FALSE, updated_at = NOW() WHERE category_id = $1 AND is_active`, categoryID.Int64())
	if err != nil {
		return 0, shared.WrapError("catalog", "DeactivateByCategory", shared.ErrStorage, "deactivating category achievements", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AchievementRepository) scanAchievement(row pgx.Row) (*catalog.Achievement, error) {
	var a catalog.Achievement
	var id, categoryID int64
	var achType string
	var criteriaJSON []byte
	var points int
	if err := row.Scan(&id, &a.Name, &a.Description, &categoryID, &achType, &criteriaJSON, &points, &a.Badge, &a.RoleReward, &a.IsHidden, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("catalog", "scanAchievement", shared.ErrNotFound, "achievement not found")
		}
		return nil, shared.WrapError("catalog", "scanAchievement", shared.ErrStorage, "scanning achievement row", err)
	}
	if err := json.Unmarshal(criteriaJSON, &a.Criteria); err != nil {
		return nil, shared.WrapError("catalog", "scanAchievement", shared.ErrStorage, "unmarshaling criteria", err)
	}
	a.ID = shared.AchievementID(id)
	a.CategoryID = shared.CategoryID(categoryID)
	a.Type = catalog.AchievementType(achType)
	a.Points = shared.Points(points)
	return &a, nil
}

func (r *AchievementRepository) scanAchievementRow(rows pgx.Rows) (*catalog.Achievement, error) {
	var a catalog.Achievement
	var id, categoryID int64
	var achType string
	var criteriaJSON []byte
	var points int
	if err := rows.Scan(&id, &a.Name, &a.Description, &categoryID, &achType, &criteriaJSON, &points, &a.Badge, &a.RoleReward, &a.IsHidden, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, shared.WrapError("catalog", "scanAchievementRow", shared.ErrStorage, "scanning achievement row", err)
	}
	if err := json.Unmarshal(criteriaJSON, &a.Criteria); err != nil {
		return nil, shared.WrapError("catalog", "scanAchievementRow", shared.ErrStorage, "unmarshaling criteria", err)
	}
	a.ID = shared.AchievementID(id)
	a.CategoryID = shared.CategoryID(categoryID)
	a.Type = catalog.AchievementType(achType)
	a.Points = shared.Points(points)
	return &a, nil
}
