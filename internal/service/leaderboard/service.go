// Package leaderboard provides XP leaderboards and user statistics.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/leafline/internal/cache"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// Leaderboard periods.
const (
	PeriodDay     = "day"
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodYear    = "year"
	PeriodAllTime = "all_time"
)

const (
	cacheKeyPrefix = "leaderboard:"
	defaultLimit   = 10
	maxLimit       = 100
)

// ErrInvalidPeriod is returned for a period that is not one of the known periods.
var ErrInvalidPeriod = errors.New("invalid period")

// XPRepository interface for XP ranking queries.
type XPRepository interface {
	GetBalance(ctx context.Context, userID uint) (int64, error)
	GetBalances(ctx context.Context, userIDs []uint) (map[uint]int64, error)
	CountByAction(ctx context.Context, userID uint, since time.Time) (map[models.XPAction]int64, error)
	TopTotalsSince(ctx context.Context, since, until time.Time, limit int) ([]repository.UserTotal, error)
	TopBalances(ctx context.Context, limit int) ([]repository.UserTotal, error)
}

// AchievementRepository interface for achievement operations.
type AchievementRepository interface {
	CountByUsers(ctx context.Context, userIDs []uint) (map[uint]int64, error)
	GetUserAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uint) (map[uint]models.User, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	Rank             int    `json:"rank"`
	UserID           uint   `json:"user_id"`
	Username         string `json:"username"`
	XP               int64  `json:"xp"`
	Level            int    `json:"level"`
	AchievementCount int    `json:"achievement_count"`
}

// Service handles leaderboard generation and user statistics.
type Service struct {
	xpRepo          XPRepository
	achievementRepo AchievementRepository
	userRepo        UserRepository
	cache           cache.Cache
	cacheTTL        time.Duration
	formula         xp.Formula
	now             func() time.Time
	log             *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
// c may be nil, in which case leaderboards are always computed.
func NewService(
	xpRepo *repository.XPRepository,
	achievementRepo *repository.AchievementRepository,
	userRepo *repository.UserRepository,
	c cache.Cache,
	cacheTTL time.Duration,
	formula xp.Formula,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(xpRepo, achievementRepo, userRepo, c, cacheTTL, formula, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	xpRepo XPRepository,
	achievementRepo AchievementRepository,
	userRepo UserRepository,
	c cache.Cache,
	cacheTTL time.Duration,
	formula xp.Formula,
	log *logger.Logger,
) *Service {
	return &Service{
		xpRepo:          xpRepo,
		achievementRepo: achievementRepo,
		userRepo:        userRepo,
		cache:           c,
		cacheTTL:        cacheTTL,
		formula:         formula,
		now:             time.Now,
		log:             log.Component("leaderboard"),
	}
}

// ValidPeriod reports whether period is a known leaderboard period.
func ValidPeriod(period string) bool {
	switch period {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAllTime:
		return true
	}
	return false
}

// ClampLimit applies the default and maximum leaderboard size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// GetLeaderboard returns the top XP earners for a period. An empty period means all time.
func (s *Service) GetLeaderboard(ctx context.Context, period string, limit int) ([]Entry, error) {
	if period == "" {
		period = PeriodAllTime
	}
	if !ValidPeriod(period) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	limit = ClampLimit(limit)

	key := fmt.Sprintf("%s%s:%d", cacheKeyPrefix, period, limit)
	if entries, ok := s.fromCache(ctx, key); ok {
		return entries, nil
	}

	entries, err := s.buildLeaderboard(ctx, period, limit)
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, key, entries)
	return entries, nil
}

// GetUserRank returns the user's position for a period, or 0 when the user earned nothing in it.
func (s *Service) GetUserRank(ctx context.Context, userID uint, period string) (int, error) {
	if !ValidPeriod(period) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}

	totals, err := s.rankings(ctx, period, 0)
	if err != nil {
		return 0, err
	}
	for i, t := range totals {
		if t.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// Invalidate drops every cached leaderboard.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DelPattern(ctx, cacheKeyPrefix+"*"); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
}

// OnXPAwarded invalidates cached leaderboards. It is registered as an XP award hook.
func (s *Service) OnXPAwarded(ctx context.Context, _ uint, _ xp.Result) {
	s.Invalidate(ctx)
}

func (s *Service) buildLeaderboard(ctx context.Context, period string, limit int) ([]Entry, error) {
	totals, err := s.rankings(ctx, period, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.UserID)
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	achievementCounts, err := s.achievementRepo.CountByUsers(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get achievement counts")
		achievementCounts = map[uint]int64{}
	}

	// Levels always follow the all-time balance, not the period total.
	balances := make(map[uint]int64, len(totals))
	if period == PeriodAllTime {
		for _, t := range totals {
			balances[t.UserID] = t.TotalXP
		}
	} else if balances, err = s.xpRepo.GetBalances(ctx, ids); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get balances")
		balances = map[uint]int64{}
	}

	entries := make([]Entry, 0, len(totals))
	for _, t := range totals {
		user, ok := users[t.UserID]
		if !ok {
			s.log.Warn().Uint("user_id", t.UserID).Msg("Ranked user not found")
			continue
		}
		entries = append(entries, Entry{
			Rank:             len(entries) + 1,
			UserID:           t.UserID,
			Username:         user.Username,
			XP:               t.TotalXP,
			Level:            xp.Level(balances[t.UserID], s.formula),
			AchievementCount: int(achievementCounts[t.UserID]),
		})
	}
	return entries, nil
}

// rankings returns users with a positive total for the period, highest first.
func (s *Service) rankings(ctx context.Context, period string, limit int) ([]repository.UserTotal, error) {
	var (
		totals []repository.UserTotal
		err    error
	)
	if period == PeriodAllTime {
		totals, err = s.xpRepo.TopBalances(ctx, limit)
	} else {
		start, end := s.periodRange(period)
		totals, err = s.xpRepo.TopTotalsSince(ctx, start, end, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rank users: %w", err)
	}

	out := totals[:0]
	for _, t := range totals {
		if t.TotalXP > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) fromCache(ctx context.Context, key string) ([]Entry, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
		}
		return nil, false
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding corrupt leaderboard cache entry")
		return nil, false
	}
	return entries, true
}

func (s *Service) toCache(ctx context.Context, key string, entries []Entry) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
	}
}

// periodRange calculates the rolling window for a period, ending now.
func (s *Service) periodRange(period string) (start, end time.Time) {
	now := s.now().UTC()
	end = now.Add(time.Second)

	switch period {
	case PeriodDay:
		start = now.Add(-24 * time.Hour)
	case PeriodWeek:
		start = now.Add(-7 * 24 * time.Hour)
	case PeriodMonth:
		start = now.Add(-30 * 24 * time.Hour)
	case PeriodYear:
		start = now.Add(-365 * 24 * time.Hour)
	default:
		start = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	return start, end
}
