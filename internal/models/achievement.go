package models

import (
	"encoding/json"
	"time"
)

// Achievement represents an achievement that can be unlocked by users.
type Achievement struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Icon        string          `gorm:"size:50" json:"icon"`
	Criteria    json.RawMessage `gorm:"type:jsonb" json:"criteria"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// AchievementCriteria represents the criteria for unlocking an achievement.
type AchievementCriteria struct {
	Metric   string  `json:"metric"`
	Operator string  `json:"operator"` // "<", ">", ">=", "<=", "==", "top"
	Value    float64 `json:"value"`
	Period   string  `json:"period,omitempty"` // "day", "week", "month", "year", "all_time"
}

// UserAchievement represents an achievement unlocked by a user.
type UserAchievement struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	User          User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_user_achievement;index" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
	EarnedAt      time.Time   `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserAchievement model.
func (UserAchievement) TableName() string {
	return "user_achievements"
}
