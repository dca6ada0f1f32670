package models

import (
	"time"
)

// XPAction identifies the kind of activity an XP event was granted for.
type XPAction string

// XP actions.
const (
	XPActionPostCreate      XPAction = "post_create"
	XPActionCommentCreate   XPAction = "comment_create"
	XPActionArticleRead     XPAction = "article_read"
	XPActionGameBlockPlay   XPAction = "game_block_play"
	XPActionPotLink         XPAction = "pot_link"
	XPActionAdminAdjustment XPAction = "admin_adjustment"
)

// AllXPActions lists every action in a stable order.
func AllXPActions() []XPAction {
	return []XPAction{
		XPActionPostCreate,
		XPActionCommentCreate,
		XPActionArticleRead,
		XPActionGameBlockPlay,
		XPActionPotLink,
		XPActionAdminAdjustment,
	}
}

// Valid reports whether a is one of the known actions.
func (a XPAction) Valid() bool {
	for _, known := range AllXPActions() {
		if a == known {
			return true
		}
	}
	return false
}

// XPEvent is an append-only ledger entry recording one successful award.
type XPEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index:idx_xp_events_user_created,priority:1" json:"user_id"`
	Action      XPAction  `gorm:"size:50;not null;index" json:"action"`
	Amount      int       `gorm:"not null" json:"amount"`
	ReferenceID *string   `gorm:"size:255" json:"reference_id,omitempty"`
	Note        string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt   time.Time `gorm:"not null;index:idx_xp_events_user_created,priority:2;index" json:"created_at"`
}

// TableName specifies the table name for XPEvent model.
func (XPEvent) TableName() string {
	return "xp_events"
}

// XPBalance is the cached running total of a user's XP events.
type XPBalance struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	TotalXP   int64     `gorm:"column:total_xp;not null;default:0" json:"total_xp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for XPBalance model.
func (XPBalance) TableName() string {
	return "xp_balances"
}
