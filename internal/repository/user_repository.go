package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/aimd54/leafline/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if notFound(err) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// GetByIDs retrieves users keyed by ID. Unknown IDs are absent from the result.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// GetByAuthID retrieves a user by the subject issued by the auth provider.
func (r *UserRepository) GetByAuthID(ctx context.Context, authID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("auth_id = ?", authID).First(&user).Error
	if notFound(err) {
		return nil, fmt.Errorf("user %s: %w", authID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by auth_id %s: %w", authID, err)
	}
	return &user, nil
}

// List retrieves all users, optionally filtered by role.
func (r *UserRepository) List(ctx context.Context, role string) ([]models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpsertByAuthID creates the user on first sight and refreshes profile fields afterwards.
func (r *UserRepository) UpsertByAuthID(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "auth_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "role", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", user.AuthID, err)
	}

	return r.GetByAuthID(ctx, user.AuthID)
}
