package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// AwardRepository implements progress.AwardRepository for PostgreSQL. Award
// relies entirely on the unique_user_achievement constraint to resolve
// concurrent award races: a second writer's INSERT fails, is detected via
// IsUniqueViolation, and the existing row is fetched and returned instead of
// surfacing an error.
type AwardRepository struct {
	conn *Connection
}

// NewAwardRepository creates a new AwardRepository.
func NewAwardRepository(conn *Connection) *AwardRepository {
	return &AwardRepository{conn: conn}
}

func (r *AwardRepository) Award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progress.UserAchievement, bool, error) {
	record := progress.NewUserAchievement(userID, achievementID)

	query := `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at, notified)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id
	`
	err := r.conn.QueryRow(ctx, query, string(userID), achievementID.Int64(), record.EarnedAt).Scan(&record.ID)
	if err == nil {
		return record, true, nil
	}
	if !IsUniqueViolation(err) {
		return nil, false, shared.WrapError("award", "Award", shared.ErrStorage, "inserting award row", err)
	}

	existing, getErr := r.Get(ctx, userID, achievementID)
	if getErr != nil {
		return nil, false, getErr
	}
	return existing, false, nil
}

func (r *AwardRepository) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progress.UserAchievement, error) {
	query := `
		SELECT id, user_id, achievement_id, earned_at, notified
		FROM user_achievements WHERE user_id = $1 AND achievement_id = $2
	`
	return r.scanAward(r.conn.QueryRow(ctx, query, string(userID), achievementID.Int64()))
}

func (r *AwardRepository) GetByUser(ctx context.Context, userID shared.UserID) ([]*progress.UserAchievement, error) {
	query := `
		SELECT id, user_id, achievement_id, earned_at, notified
		FROM user_achievements WHERE user_id = $1
		ORDER BY earned_at DESC
	`
	rows, err := r.conn.Query(ctx, query, string(userID))
	if err != nil {
		return nil, shared.WrapError("award", "GetByUser", shared.ErrStorage, "listing user awards", err)
	}
	defer rows.Close()

	var out []*progress.UserAchievement
	for rows.Next() {
		a, err := r.scanAwardRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AwardRepository) MarkNotified(ctx context.Context, id int64) error {
	tag, err := r.conn.Exec(ctx, `UPDATE user_achievements SET notified = TRUE WHERE id = $1`, id)
	if err != nil {
		return shared.WrapError("award", "MarkNotified", shared.ErrStorage, "marking award notified", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("award", "MarkNotified", shared.ErrNotFound, "award row not found")
	}
	return nil
}

func (r *AwardRepository) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM user_achievements WHERE achievement_id = $1`, achievementID.Int64())
	if err != nil {
		return 0, shared.WrapError("award", "DeleteByAchievement", shared.ErrStorage, "deleting award rows", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AwardRepository) scanAward(row pgx.Row) (*progress.UserAchievement, error) {
	var a progress.UserAchievement
	var userID string
	var achievementID int64
	if err := row.Scan(&a.ID, &userID, &achievementID, &a.EarnedAt, &a.Notified); err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("award", "scanAward", shared.ErrNotFound, "award row not found")
		}
		return nil, shared.WrapError("award", "scanAward", shared.ErrStorage, "scanning award row", err)
	}
	a.UserID = shared.UserID(userID)
	a.AchievementID = shared.AchievementID(achievementID)
	return &a, nil
}

func (r *AwardRepository) scanAwardRow(rows pgx.Rows) (*progress.UserAchievement, error) {
	var a progress.UserAchievement
	var userID string
	var achievementID int64
	if err := rows.Scan(&a.ID, &userID, &achievementID, &a.EarnedAt, &a.Notified); err != nil {
		return nil, shared.WrapError("award", "scanAwardRow", shared.ErrStorage, "scanning award row", err)
	}
	a.UserID = shared.UserID(userID)
	a.AchievementID = shared.AchievementID(achievementID)
	return &a, nil
}
