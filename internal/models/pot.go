package models

import (
	"time"
)

// Pot is a physical product carrying a QR code that a buyer can link to their account.
type Pot struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Code        string     `gorm:"uniqueIndex;not null;size:64" json:"code"`
	ProductName string     `gorm:"size:255" json:"product_name"`
	ClaimedBy   *uint      `gorm:"index" json:"claimed_by,omitempty"`
	Owner       *User      `gorm:"foreignKey:ClaimedBy" json:"owner,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Pot model.
func (Pot) TableName() string {
	return "pots"
}

// IsClaimed reports whether the pot is already linked to an account.
func (p *Pot) IsClaimed() bool {
	return p.ClaimedBy != nil
}
