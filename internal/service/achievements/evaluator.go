package achievements

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
)

// Criteria metrics.
const (
	MetricTotalXP          = "total_xp"
	MetricLevel            = "level"
	MetricPostsCreated     = "posts_created"
	MetricCommentsCreated  = "comments_created"
	MetricArticlesRead     = "articles_read"
	MetricPotsLinked       = "pots_linked"
	MetricGameBlocksPlayed = "game_blocks_played"
)

// Count metrics are derived from rewarded events, so activity beyond a daily cap is not counted.
var countMetrics = map[string]models.XPAction{
	MetricPostsCreated:     models.XPActionPostCreate,
	MetricCommentsCreated:  models.XPActionCommentCreate,
	MetricArticlesRead:     models.XPActionArticleRead,
	MetricPotsLinked:       models.XPActionPotLink,
	MetricGameBlocksPlayed: models.XPActionGameBlockPlay,
}

// allTime is used as the start of the all-time period.
var allTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func (s *Service) checkCriteria(ctx context.Context, criteria *models.AchievementCriteria, userID uint) (bool, error) {
	if criteria.Operator == "top" {
		if criteria.Metric != MetricTotalXP {
			return false, fmt.Errorf("top ranking not supported for metric: %s", criteria.Metric)
		}
		return s.evaluateTopRanking(ctx, int(criteria.Value), criteria.Period, userID)
	}

	value, err := s.metricValue(ctx, criteria.Metric, criteria.Period, userID)
	if err != nil {
		return false, err
	}
	return compare(criteria.Operator, criteria.Value, value)
}

func (s *Service) metricValue(ctx context.Context, metric, period string, userID uint) (float64, error) {
	start := s.periodStart(period)

	switch metric {
	case MetricTotalXP:
		if start.Equal(allTime) {
			total, err := s.xpRepo.GetBalance(ctx, userID)
			return float64(total), err
		}
		events, err := s.xpRepo.EventsSince(ctx, userID, start)
		if err != nil {
			return 0, err
		}
		return float64(xp.TodayTotal(events)), nil
	case MetricLevel:
		total, err := s.xpRepo.GetBalance(ctx, userID)
		if err != nil {
			return 0, err
		}
		return float64(xp.Level(total, s.formula)), nil
	}

	action, ok := countMetrics[metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", metric)
	}
	counts, err := s.xpRepo.CountByAction(ctx, userID, start)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", metric, err)
	}
	return float64(counts[action]), nil
}

// compare applies operator to actual and threshold.
func compare(operator string, threshold, actual float64) (bool, error) {
	switch operator {
	case "<":
		return actual < threshold, nil
	case "<=":
		return actual <= threshold, nil
	case ">":
		return actual > threshold, nil
	case ">=":
		return actual >= threshold, nil
	case "==":
		return actual == threshold, nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", operator)
	}
}

// evaluateTopRanking checks whether the user is among the top N XP earners for the period.
// Users with no XP in the period never rank.
func (s *Service) evaluateTopRanking(ctx context.Context, topN int, period string, userID uint) (bool, error) {
	if topN <= 0 {
		return false, fmt.Errorf("invalid value for 'top' operator: %d", topN)
	}

	start := s.periodStart(period)
	var (
		rankings []repository.UserTotal
		err      error
	)
	if start.Equal(allTime) {
		rankings, err = s.xpRepo.TopBalances(ctx, topN)
	} else {
		rankings, err = s.xpRepo.TopTotalsSince(ctx, start, s.now().UTC().Add(time.Second), topN)
	}
	if err != nil {
		return false, fmt.Errorf("failed to rank users: %w", err)
	}

	for _, r := range rankings {
		if r.UserID == userID && r.TotalXP > 0 {
			return true, nil
		}
	}
	return false, nil
}

// periodStart returns the start of a rolling period ending now.
func (s *Service) periodStart(period string) time.Time {
	now := s.now().UTC()

	switch period {
	case "day":
		return now.Add(-24 * time.Hour)
	case "week":
		return now.Add(-7 * 24 * time.Hour)
	case "month":
		return now.Add(-30 * 24 * time.Hour)
	case "year":
		return now.Add(-365 * 24 * time.Hour)
	default:
		return allTime
	}
}
