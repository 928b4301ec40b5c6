// Package award implements the at-most-once award protocol of §4.E: a
// transactional check-then-insert guarded by a unique constraint, and a
// bounded in-process channel of AwardEvents for the notification router.
package award

import (
	"context"
	"fmt"
	"log/slog"

	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	progressdomain "github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
	"github.com/achievement-engine/engine/internal/observability"
)

// AwardEvent is published after a successful award commit, for the
// notification router (and any other in-process subscriber, e.g. a role
// binder) to consume. It is never published for an AlreadyAwarded outcome.
type AwardEvent struct {
	UserAchievement *progressdomain.UserAchievement
	Achievement     *catalogdomain.Achievement
	GuildID         shared.GuildID
}

// defaultAwardEventBuffer bounds the in-process award event channel; a full
// channel means the notification router is falling behind and publishing
// blocks rather than silently dropping an award notification.
const defaultAwardEventBuffer = 256

// Service implements maybe_award/award_directly/mark_notified.
type Service struct {
	achievements catalogdomain.AchievementRepository
	progress     progressdomain.Repository
	awards       progressdomain.AwardRepository
	events       chan AwardEvent
	logger       *slog.Logger
	monitor      *observability.Monitor
}

// SetMonitor feeds the award commit path through monitor under
// OperationAward, so §4.I's regression detector observes the award
// transaction's latency alongside storage and cache calls.
func (s *Service) SetMonitor(monitor *observability.Monitor) {
	s.monitor = monitor
}

// NewService wires a Service against its repositories. The returned AwardEvent
// channel must be drained by a consumer (Events) or the bounded buffer will
// fill and subsequent awards will block on publish.
func NewService(achievements catalogdomain.AchievementRepository, progressRepo progressdomain.Repository, awards progressdomain.AwardRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		achievements: achievements,
		progress:     progressRepo,
		awards:       awards,
		events:       make(chan AwardEvent, defaultAwardEventBuffer),
		logger:       logger,
	}
}

// Events returns the channel of published AwardEvents. Consumers should
// range over it for the lifetime of the service.
func (s *Service) Events() <-chan AwardEvent {
	return s.events
}

// MaybeAward checks the user's current progress against the achievement's
// target and awards it if eligible. Returns (nil, false, nil) with no error
// when the user is not yet eligible (NotEligible is absorbed, not surfaced,
// since this is called speculatively on every crossed_threshold signal).
func (s *Service) MaybeAward(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, guildID shared.GuildID) (*progressdomain.UserAchievement, bool, error) {
	current, err := s.progress.Get(ctx, userID, achievementID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetching progress for award check: %w", err)
	}
	if !current.IsSatisfied() {
		return nil, false, nil
	}

	return s.award(ctx, userID, achievementID, guildID)
}

// AwardDirectly awards an achievement without checking progress, for the
// admin override path. Still idempotent: a second call is absorbed as
// AlreadyAwarded.
func (s *Service) AwardDirectly(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, guildID shared.GuildID) (*progressdomain.UserAchievement, bool, error) {
	return s.award(ctx, userID, achievementID, guildID)
}

func (s *Service) award(ctx context.Context, userID shared.UserID, achievementID shared.AchievementID, guildID shared.GuildID) (*progressdomain.UserAchievement, bool, error) {
	var record *progressdomain.UserAchievement
	var awarded bool
	err := s.monitor.Track(observability.OperationAward, func() error {
		var err error
		record, awarded, err = s.awards.Award(ctx, userID, achievementID)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("storage: %w", err)
	}
	if !awarded {
		// AlreadyAwarded: absorbed, no error, no event. One of two racing
		// maybe_award calls lost the unique-constraint race.
		return record, false, nil
	}

	achievement, err := s.achievements.GetByID(ctx, achievementID)
	if err != nil {
		s.logger.Error("award committed but achievement lookup failed for event publish", "user_id", userID, "achievement_id", achievementID, "error", err)
		return record, true, nil
	}

	select {
	case s.events <- AwardEvent{UserAchievement: record, Achievement: achievement, GuildID: guildID}:
	case <-ctx.Done():
		s.logger.Warn("award event publish cancelled", "user_id", userID, "achievement_id", achievementID)
	}

	return record, true, nil
}

// MarkNotified records that a user_achievement has been surfaced to the user.
func (s *Service) MarkNotified(ctx context.Context, userAchievementID int64) error {
	return s.awards.MarkNotified(ctx, userAchievementID)
}

// GetByUser returns every award a user holds.
func (s *Service) GetByUser(ctx context.Context, userID shared.UserID) ([]*progressdomain.UserAchievement, error) {
	return s.awards.GetByUser(ctx, userID)
}
