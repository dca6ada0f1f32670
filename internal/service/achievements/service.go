// Package achievements evaluates and unlocks gamified achievements.
package achievements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	prommetrics "github.com/aimd54/leafline/internal/metrics"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// AchievementRepository interface for achievement operations.
type AchievementRepository interface {
	Create(ctx context.Context, achievement *models.Achievement) error
	GetAll(ctx context.Context) ([]models.Achievement, error)
	GetByID(ctx context.Context, id uint) (*models.Achievement, error)
	GetByName(ctx context.Context, name string) (*models.Achievement, error)
	HasUserEarned(ctx context.Context, userID, achievementID uint) (bool, error)
	Award(ctx context.Context, userID, achievementID uint) error
	GetUserAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error)
	GetHolders(ctx context.Context, achievementID uint) ([]models.User, error)
	GetHoldersCount(ctx context.Context, achievementID uint) (int64, error)
}

// XPRepository interface for the XP ledger queries used by criteria.
type XPRepository interface {
	GetBalance(ctx context.Context, userID uint) (int64, error)
	EventsSince(ctx context.Context, userID uint, since time.Time) ([]models.XPEvent, error)
	CountByAction(ctx context.Context, userID uint, since time.Time) (map[models.XPAction]int64, error)
	TopTotalsSince(ctx context.Context, since, until time.Time, limit int) ([]repository.UserTotal, error)
	TopBalances(ctx context.Context, limit int) ([]repository.UserTotal, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	List(ctx context.Context, role string) ([]models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Notifier announces unlocked achievements.
type Notifier interface {
	AchievementUnlocked(ctx context.Context, user *models.User, achievement *models.Achievement) error
}

// Service handles achievement evaluation and unlocking.
type Service struct {
	achievementRepo AchievementRepository
	xpRepo          XPRepository
	userRepo        UserRepository
	notifier        Notifier
	formula         xp.Formula
	now             func() time.Time
	log             *logger.Logger
}

// NewService creates a new achievement service.
func NewService(
	achievementRepo *repository.AchievementRepository,
	xpRepo *repository.XPRepository,
	userRepo *repository.UserRepository,
	notifier Notifier,
	formula xp.Formula,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(achievementRepo, xpRepo, userRepo, notifier, formula, log)
}

// NewServiceWithInterfaces creates a new achievement service with interface dependencies (useful for testing).
// notifier may be nil.
func NewServiceWithInterfaces(
	achievementRepo AchievementRepository,
	xpRepo XPRepository,
	userRepo UserRepository,
	notifier Notifier,
	formula xp.Formula,
	log *logger.Logger,
) *Service {
	return &Service{
		achievementRepo: achievementRepo,
		xpRepo:          xpRepo,
		userRepo:        userRepo,
		notifier:        notifier,
		formula:         formula,
		now:             time.Now,
		log:             log.Component("achievements"),
	}
}

// SeedCatalog creates the default achievements that do not exist yet and returns how many were added.
func (s *Service) SeedCatalog(ctx context.Context) (int, error) {
	created := 0
	for _, def := range DefaultCatalog() {
		_, err := s.achievementRepo.GetByName(ctx, def.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return created, fmt.Errorf("failed to look up achievement %q: %w", def.Name, err)
		}

		criteria, err := json.Marshal(def.Criteria)
		if err != nil {
			return created, err
		}
		a := &models.Achievement{
			Name:        def.Name,
			Description: def.Description,
			Icon:        def.Icon,
			Criteria:    criteria,
		}
		if err := s.achievementRepo.Create(ctx, a); err != nil {
			return created, fmt.Errorf("failed to create achievement %q: %w", def.Name, err)
		}
		created++
	}

	if created > 0 {
		s.log.Info().Int("created", created).Msg("Seeded achievement catalog")
	}
	return created, nil
}

// EvaluateAll evaluates every achievement for every user and returns the number unlocked.
// This is typically run as a scheduled job.
func (s *Service) EvaluateAll(ctx context.Context) (int, error) {
	s.log.Info().Msg("Starting achievement evaluation for all users")
	start := time.Now()

	users, err := s.userRepo.List(ctx, "")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get users")
		return 0, fmt.Errorf("failed to get users: %w", err)
	}

	unlocked := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return unlocked, err
		}
		earned, err := s.EvaluateUser(ctx, user.ID)
		if err != nil {
			s.log.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to evaluate achievements")
			continue
		}
		unlocked += len(earned)
	}

	s.log.Info().
		Int("users_evaluated", len(users)).
		Int("achievements_unlocked", unlocked).
		Dur("duration", time.Since(start)).
		Msg("Achievement evaluation complete")

	return unlocked, nil
}

// EvaluateUser evaluates every achievement the user does not hold yet and returns those newly unlocked.
func (s *Service) EvaluateUser(ctx context.Context, userID uint) ([]models.Achievement, error) {
	catalog, err := s.achievementRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get achievements: %w", err)
	}

	var newlyEarned []models.Achievement
	for i := range catalog {
		achievement := &catalog[i]

		has, err := s.achievementRepo.HasUserEarned(ctx, userID, achievement.ID)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Uint("achievement_id", achievement.ID).
				Msg("Failed to check if user has achievement")
			continue
		}
		if has {
			continue
		}

		qualifies, err := s.Evaluate(ctx, achievement, userID)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("achievement", achievement.Name).
				Msg("Failed to evaluate achievement")
			continue
		}
		if !qualifies {
			continue
		}

		if err := s.Unlock(ctx, userID, achievement); err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("achievement", achievement.Name).
				Msg("Failed to unlock achievement")
			continue
		}
		newlyEarned = append(newlyEarned, *achievement)
	}

	return newlyEarned, nil
}

// OnXPAwarded re-evaluates the user's achievements after an award. It is registered as an XP award hook.
func (s *Service) OnXPAwarded(ctx context.Context, userID uint, _ xp.Result) {
	if _, err := s.EvaluateUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Achievement evaluation after award failed")
	}
}

// Evaluate reports whether the user meets an achievement's criteria.
func (s *Service) Evaluate(ctx context.Context, achievement *models.Achievement, userID uint) (bool, error) {
	var criteria models.AchievementCriteria
	if err := json.Unmarshal(achievement.Criteria, &criteria); err != nil {
		return false, fmt.Errorf("failed to parse achievement criteria: %w", err)
	}
	return s.checkCriteria(ctx, &criteria, userID)
}

// Unlock records the achievement for the user, updates metrics and sends a notification.
func (s *Service) Unlock(ctx context.Context, userID uint, achievement *models.Achievement) error {
	if err := s.achievementRepo.Award(ctx, userID, achievement.ID); err != nil {
		return err
	}

	prommetrics.RecordAchievementAwarded(achievement.Name)
	if count, err := s.achievementRepo.GetHoldersCount(ctx, achievement.ID); err == nil {
		prommetrics.SetActiveAchievementHolders(achievement.Name, int(count))
	}

	s.log.Info().Uint("user_id", userID).Str("achievement", achievement.Name).Msg("Achievement unlocked")

	if s.notifier == nil {
		return nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Skipping unlock notification, user lookup failed")
		return nil
	}
	if err := s.notifier.AchievementUnlocked(ctx, user, achievement); err != nil {
		s.log.Warn().Err(err).Str("achievement", achievement.Name).Msg("Failed to send unlock notification")
	}
	return nil
}

// UserAchievements retrieves all achievements unlocked by a user.
func (s *Service) UserAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error) {
	return s.achievementRepo.GetUserAchievements(ctx, userID)
}

// Catalog retrieves all achievements.
func (s *Service) Catalog(ctx context.Context) ([]models.Achievement, error) {
	return s.achievementRepo.GetAll(ctx)
}

// GetByID retrieves an achievement by its ID.
func (s *Service) GetByID(ctx context.Context, id uint) (*models.Achievement, error) {
	return s.achievementRepo.GetByID(ctx, id)
}

// Holders retrieves users who unlocked an achievement.
func (s *Service) Holders(ctx context.Context, id uint) ([]models.User, error) {
	return s.achievementRepo.GetHolders(ctx, id)
}

// HoldersCount retrieves how many users unlocked an achievement.
func (s *Service) HoldersCount(ctx context.Context, id uint) (int64, error) {
	return s.achievementRepo.GetHoldersCount(ctx, id)
}
