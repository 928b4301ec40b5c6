package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// ProgressRepository implements progress.Repository for PostgreSQL. Apply is
// the sole write path and runs the read-modify-write entirely inside one
// transaction so the returned TransitionReport always matches the row it
// persisted, even under concurrent writers for the same (user, achievement).
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

func (r *ProgressRepository) Apply(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, targetValue shared.ProgressValue, delta progress.Delta) (progress.TransitionReport, error) {
	var report progress.TransitionReport

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var currentValue float64
		var progressDataRaw []byte
		selectQuery := `
			SELECT current_value, progress_data FROM achievement_progress
			WHERE user_id = $1 AND achievement_id = $2
			FOR UPDATE
		`
		err := tx.QueryRow(ctx, selectQuery, string(userID), achievementID.Int64()).Scan(&currentValue, &progressDataRaw)
		found := true
		if err != nil {
			if IsNoRows(err) {
				found = false
			} else {
				return shared.WrapError("progress", "Apply", shared.ErrStorage, "reading progress row", err)
			}
		}

		p := &progress.AchievementProgress{
			UserID:        userID,
			AchievementID: achievementID,
			CurrentValue:  shared.ProgressValue(currentValue),
			TargetValue:   targetValue,
			ProgressData:  progressDataRaw,
		}
		previous := p.CurrentValue
		delta.Apply(p)
		if p.ProgressData == nil {
			p.ProgressData = json.RawMessage(`{}`)
		}

		if found {
			updateQuery := `
				UPDATE achievement_progress
				SET current_value = $1, target_value = $2, progress_data = $3, last_updated = NOW()
				WHERE user_id = $4 AND achievement_id = $5
			`
			if _, err := tx.Exec(ctx, updateQuery, p.CurrentValue.Float64(), targetValue.Float64(), []byte(p.ProgressData), string(userID), achievementID.Int64()); err != nil {
				return shared.WrapError("progress", "Apply", shared.ErrStorage, "updating progress row", err)
			}
		} else {
			insertQuery := `
				INSERT INTO achievement_progress (user_id, achievement_id, current_value, target_value, progress_data, last_updated)
				VALUES ($1, $2, $3, $4, $5, NOW())
			`
			if _, err := tx.Exec(ctx, insertQuery, string(userID), achievementID.Int64(), p.CurrentValue.Float64(), targetValue.Float64(), []byte(p.ProgressData)); err != nil {
				return shared.WrapError("progress", "Apply", shared.ErrStorage, "inserting progress row", err)
			}
		}

		report = progress.NewTransitionReport(userID, achievementID, previous, p.CurrentValue, targetValue)
		return nil
	})
	if err != nil {
		return progress.TransitionReport{}, err
	}
	return report, nil
}

func (r *ProgressRepository) Get(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) (*progress.AchievementProgress, error) {
	query := `
		SELECT id, user_id, achievement_id, current_value, target_value, progress_data, last_updated
		FROM achievement_progress WHERE user_id = $1 AND achievement_id = $2
	`
	return r.scanProgress(r.conn.QueryRow(ctx, query, string(userID), achievementID.Int64()))
}

func (r *ProgressRepository) GetByUser(ctx context.Context, userID shared.UserID) ([]*progress.AchievementProgress, error) {
	query := `
		SELECT id, user_id, achievement_id, current_value, target_value, progress_data, last_updated
		FROM achievement_progress WHERE user_id = $1
		ORDER BY achievement_id
	`
	rows, err := r.conn.Query(ctx, query, string(userID))
	if err != nil {
		return nil, shared.WrapError("progress", "GetByUser", shared.ErrStorage, "listing user progress", err)
	}
	defer rows.Close()

	var out []*progress.AchievementProgress
	for rows.Next() {
		p, err := r.scanProgressRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProgressRepository) Reset(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM achievement_progress WHERE user_id = $1 AND achievement_id = $2`, string(userID), achievementID.Int64())
	if err != nil {
		return shared.WrapError("progress", "Reset", shared.ErrStorage, "deleting progress row", err)
	}
	return nil
}

func (r *ProgressRepository) DeleteByAchievement(ctx context.Context, achievementID shared.AchievementID) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM achievement_progress WHERE achievement_id = $1`, achievementID.Int64())
	if err != nil {
		return 0, shared.WrapError("progress", "DeleteByAchievement", shared.ErrStorage, "deleting progress rows", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ProgressRepository) scanProgress(row pgx.Row) (*progress.AchievementProgress, error) {
	var p progress.AchievementProgress
	var userID string
	var achievementID int64
	var currentValue, targetValue float64
	var progressDataRaw []byte
	if err := row.Scan(&p.ID, &userID, &achievementID, &currentValue, &targetValue, &progressDataRaw, &p.LastUpdated); err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("progress", "scanProgress", shared.ErrNotFound, "progress row not found")
		}
		return nil, shared.WrapError("progress", "scanProgress", shared.ErrStorage, "scanning progress row", err)
	}
	p.UserID = shared.UserID(userID)
	p.AchievementID = shared.AchievementID(achievementID)
	p.CurrentValue = shared.ProgressValue(currentValue)
	p.TargetValue = shared.ProgressValue(targetValue)
	p.ProgressData = progressDataRaw
	return &p, nil
}

func (r *ProgressRepository) scanProgressRow(rows pgx.Rows) (*progress.AchievementProgress, error) {
	var p progress.AchievementProgress
	var userID string
	var achievementID int64
	var currentValue, targetValue float64
	var progressDataRaw []byte
	if err := rows.Scan(&p.ID, &userID, &achievementID, &currentValue, &targetValue, &progressDataRaw, &p.LastUpdated); err != nil {
		return nil, shared.WrapError("progress", "scanProgressRow", shared.ErrStorage, "scanning progress row", err)
	}
	p.UserID = shared.UserID(userID)
	p.AchievementID = shared.AchievementID(achievementID)
	p.CurrentValue = shared.ProgressValue(currentValue)
	p.TargetValue = shared.ProgressValue(targetValue)
	p.ProgressData = progressDataRaw
	return &p, nil
}
