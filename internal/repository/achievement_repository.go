package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/leafline/internal/models"
)

// AchievementRepository handles achievement-related database operations.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Create creates a new achievement in the database.
func (r *AchievementRepository) Create(ctx context.Context, achievement *models.Achievement) error {
	return r.db.WithContext(ctx).Create(achievement).Error
}

// GetByID retrieves an achievement by its ID.
func (r *AchievementRepository) GetByID(ctx context.Context, id uint) (*models.Achievement, error) {
	var achievement models.Achievement
	err := r.db.WithContext(ctx).First(&achievement, id).Error
	if notFound(err) {
		return nil, fmt.Errorf("achievement %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &achievement, nil
}

// GetByName retrieves an achievement by its name.
func (r *AchievementRepository) GetByName(ctx context.Context, name string) (*models.Achievement, error) {
	var achievement models.Achievement
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&achievement).Error
	if notFound(err) {
		return nil, fmt.Errorf("achievement %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &achievement, nil
}

// GetAll retrieves all achievements from the database.
func (r *AchievementRepository) GetAll(ctx context.Context) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&achievements).Error
	return achievements, err
}

// Update updates an existing achievement in the database.
func (r *AchievementRepository) Update(ctx context.Context, achievement *models.Achievement) error {
	return r.db.WithContext(ctx).Save(achievement).Error
}

// Delete deletes an achievement by its ID.
func (r *AchievementRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Achievement{}, id).Error
}

// Award records that a user unlocked an achievement.
// Awarding an already unlocked achievement is a no-op.
func (r *AchievementRepository) Award(ctx context.Context, userID, achievementID uint) error {
	userAchievement := &models.UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(userAchievement).Error
}

// GetUserAchievements retrieves all achievements unlocked by a user with details preloaded.
func (r *AchievementRepository) GetUserAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error) {
	var userAchievements []models.UserAchievement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Achievement").
		Order("earned_at DESC").
		Find(&userAchievements).Error
	return userAchievements, err
}

// HasUserEarned checks if a user has unlocked a specific achievement.
func (r *AchievementRepository) HasUserEarned(ctx context.Context, userID, achievementID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetHolders retrieves users who unlocked a specific achievement, most recent first.
func (r *AchievementRepository) GetHolders(ctx context.Context, achievementID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN user_achievements ON user_achievements.user_id = users.id").
		Where("user_achievements.achievement_id = ?", achievementID).
		Order("user_achievements.earned_at DESC").
		Find(&users).Error
	return users, err
}

// GetHoldersCount returns the number of users who unlocked a specific achievement.
func (r *AchievementRepository) GetHoldersCount(ctx context.Context, achievementID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("achievement_id = ?", achievementID).
		Count(&count).Error
	return count, err
}

// CountByUsers returns unlocked achievement counts keyed by user ID.
func (r *AchievementRepository) CountByUsers(ctx context.Context, userIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	type row struct {
		UserID uint
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Select("user_id, COUNT(*) AS count").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.UserID] = r.Count
	}
	return out, nil
}
