package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/leafline/internal/models"
)

// DecideFunc inspects the user's events for the current day and returns the event to append.
// A non-nil error aborts the award without writing anything and is returned to the caller unchanged.
type DecideFunc func(today []models.XPEvent) (*models.XPEvent, error)

// UserTotal is a user's XP sum over some period.
type UserTotal struct {
	UserID  uint  `json:"user_id"`
	TotalXP int64 `json:"total_xp"`
}

// XPRepository owns the XP event ledger and the per-user balance projection.
type XPRepository struct {
	db *DB
}

// NewXPRepository creates a new XP repository.
func NewXPRepository(db *DB) *XPRepository {
	return &XPRepository{db: db}
}

// Award runs decide and applies its result inside a single transaction.
//
// The user's balance row is created on first use and locked before today's events are read, so
// concurrent awards for the same user serialize and every decision sees the events committed by
// the awards before it.
func (r *XPRepository) Award(ctx context.Context, userID uint, since time.Time, decide DecideFunc) (*models.XPEvent, int64, error) {
	var (
		event *models.XPEvent
		total int64
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance := models.XPBalance{UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&balance).Error; err != nil {
			return fmt.Errorf("failed to initialize balance for user %d: %w", userID, err)
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&balance).Error; err != nil {
			return fmt.Errorf("failed to lock balance for user %d: %w", userID, err)
		}

		var today []models.XPEvent
		if err := tx.Where("user_id = ? AND created_at >= ?", userID, since).
			Order("created_at ASC").
			Find(&today).Error; err != nil {
			return fmt.Errorf("failed to load xp events for user %d: %w", userID, err)
		}

		ev, err := decide(today)
		if err != nil {
			return err
		}
		ev.UserID = userID

		if err := tx.Create(ev).Error; err != nil {
			return fmt.Errorf("failed to append xp event: %w", err)
		}

		if err := tx.Model(&models.XPBalance{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"total_xp":   gorm.Expr("total_xp + ?", ev.Amount),
				"updated_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("failed to update balance for user %d: %w", userID, err)
		}

		event = ev
		total = balance.TotalXP + int64(ev.Amount)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return event, total, nil
}

// GetBalance returns the user's total XP. Users that never earned anything have a zero balance.
func (r *XPRepository) GetBalance(ctx context.Context, userID uint) (int64, error) {
	var balance models.XPBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if notFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}
	return balance.TotalXP, nil
}

// GetBalances returns total XP keyed by user ID for the given users.
func (r *XPRepository) GetBalances(ctx context.Context, userIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var balances []models.XPBalance
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	for _, b := range balances {
		out[b.UserID] = b.TotalXP
	}
	return out, nil
}

// EventsSince returns the user's events created at or after since, oldest first.
func (r *XPRepository) EventsSince(ctx context.Context, userID uint, since time.Time) ([]models.XPEvent, error) {
	var events []models.XPEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get xp events for user %d: %w", userID, err)
	}
	return events, nil
}

// History returns the user's events, newest first.
func (r *XPRepository) History(ctx context.Context, userID uint, limit, offset int) ([]models.XPEvent, error) {
	var events []models.XPEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get xp history for user %d: %w", userID, err)
	}
	return events, nil
}

// CountByAction counts the user's events per action since the given time.
func (r *XPRepository) CountByAction(ctx context.Context, userID uint, since time.Time) (map[models.XPAction]int64, error) {
	type row struct {
		Action models.XPAction
		Count  int64
	}

	var rows []row
	err := r.db.WithContext(ctx).Model(&models.XPEvent{}).
		Select("action, COUNT(*) AS count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count xp events for user %d: %w", userID, err)
	}

	counts := make(map[models.XPAction]int64, len(rows))
	for _, r := range rows {
		counts[r.Action] = r.Count
	}
	return counts, nil
}

// TopTotalsSince ranks users by the XP earned in [since, until). limit <= 0 returns everyone.
func (r *XPRepository) TopTotalsSince(ctx context.Context, since, until time.Time, limit int) ([]UserTotal, error) {
	query := r.db.WithContext(ctx).Model(&models.XPEvent{}).
		Select("user_id, SUM(amount) AS total_xp").
		Where("created_at >= ? AND created_at < ?", since, until).
		Group("user_id").
		Order("total_xp DESC, user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var totals []UserTotal
	if err := query.Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to rank xp totals: %w", err)
	}
	return totals, nil
}

// TopBalances ranks users by their all-time balance. limit <= 0 returns everyone.
func (r *XPRepository) TopBalances(ctx context.Context, limit int) ([]UserTotal, error) {
	query := r.db.WithContext(ctx).Model(&models.XPBalance{}).
		Select("user_id, total_xp").
		Order("total_xp DESC, user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var totals []UserTotal
	if err := query.Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to rank xp balances: %w", err)
	}
	return totals, nil
}
