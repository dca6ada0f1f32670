package leaderboard

import (
	"context"
	"fmt"

	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/service/xp"
)

// UserStats represents comprehensive statistics for a user.
type UserStats struct {
	UserID       uint                      `json:"user_id"`
	Username     string                    `json:"username"`
	Period       string                    `json:"period"`
	TotalXP      int64                     `json:"total_xp"`
	Progress     xp.Progress               `json:"progress"`
	Activity     map[models.XPAction]int64 `json:"activity"`
	Achievements []models.Achievement      `json:"achievements"`
	Rank         int                       `json:"rank"`
	AllTimeRank  int                       `json:"all_time_rank"`
}

// GetUserStats returns comprehensive statistics for a user over a period.
func (s *Service) GetUserStats(ctx context.Context, userID uint, period string) (*UserStats, error) {
	if period == "" {
		period = PeriodAllTime
	}
	if !ValidPeriod(period) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	total, err := s.xpRepo.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	start, _ := s.periodRange(period)
	activity, err := s.xpRepo.CountByAction(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}

	stats := &UserStats{
		UserID:       userID,
		Username:     user.Username,
		Period:       period,
		TotalXP:      total,
		Progress:     xp.ProgressFor(total, s.formula),
		Activity:     activity,
		Achievements: []models.Achievement{},
	}

	userAchievements, err := s.achievementRepo.GetUserAchievements(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get user achievements")
	} else {
		for _, ua := range userAchievements {
			if ua.Achievement.ID != 0 {
				stats.Achievements = append(stats.Achievements, ua.Achievement)
			}
		}
	}

	if stats.Rank, err = s.GetUserRank(ctx, userID, period); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get period rank")
	}
	if stats.AllTimeRank, err = s.GetUserRank(ctx, userID, PeriodAllTime); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get all-time rank")
	}

	return stats, nil
}
