package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/leafline/internal/models"
)

// ErrPotAlreadyClaimed is returned when linking a pot that already has an owner.
var ErrPotAlreadyClaimed = errors.New("pot already claimed")

// PotRepository handles pot inventory and ownership.
type PotRepository struct {
	db *DB
}

// NewPotRepository creates a new pot repository.
func NewPotRepository(db *DB) *PotRepository {
	return &PotRepository{db: db}
}

// Create registers a new pot.
func (r *PotRepository) Create(ctx context.Context, pot *models.Pot) error {
	if err := r.db.WithContext(ctx).Create(pot).Error; err != nil {
		return fmt.Errorf("failed to create pot %s: %w", pot.Code, err)
	}
	return nil
}

// GetByCode retrieves a pot by its printed code.
func (r *PotRepository) GetByCode(ctx context.Context, code string) (*models.Pot, error) {
	var pot models.Pot
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&pot).Error
	if notFound(err) {
		return nil, fmt.Errorf("pot %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pot %s: %w", code, err)
	}
	return &pot, nil
}

// ListByOwner retrieves the pots linked to a user.
func (r *PotRepository) ListByOwner(ctx context.Context, userID uint) ([]models.Pot, error) {
	var pots []models.Pot
	err := r.db.WithContext(ctx).
		Where("claimed_by = ?", userID).
		Order("claimed_at DESC").
		Find(&pots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pots for user %d: %w", userID, err)
	}
	return pots, nil
}

// Claim links an unclaimed pot to a user. The pot row is locked for the duration of the check.
func (r *PotRepository) Claim(ctx context.Context, code string, userID uint, at time.Time) (*models.Pot, error) {
	var pot models.Pot

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			First(&pot).Error
		if notFound(err) {
			return fmt.Errorf("pot %s: %w", code, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock pot %s: %w", code, err)
		}

		if pot.IsClaimed() {
			return ErrPotAlreadyClaimed
		}

		pot.ClaimedBy = &userID
		pot.ClaimedAt = &at
		if err := tx.Model(&pot).Updates(map[string]interface{}{
			"claimed_by": userID,
			"claimed_at": at,
		}).Error; err != nil {
			return fmt.Errorf("failed to claim pot %s: %w", code, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &pot, nil
}
