// Package models defines domain models for the plant community service.
package models

import (
	"time"
)

// User represents an account known to the hosted auth provider.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AuthID    string    `gorm:"column:auth_id;uniqueIndex;not null;size:64" json:"-"`
	Username  string    `gorm:"size:255" json:"username"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	Role      string    `gorm:"size:50;default:user" json:"role"` // 'user' or 'admin'
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// IsAdmin reports whether the user may perform administrative actions.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
