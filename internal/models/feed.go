package models

import (
	"time"
)

// Post is a community feed entry.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Author    User      `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Comments []Comment `gorm:"foreignKey:PostID" json:"comments,omitempty"`
}

// TableName specifies the table name for Post model.
func (Post) TableName() string {
	return "posts"
}

// Comment is a reply to a post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Author    User      `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Comment model.
func (Comment) TableName() string {
	return "comments"
}

// PostLike records that a user liked a post.
type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_like" json:"post_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_post_like" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for PostLike model.
func (PostLike) TableName() string {
	return "post_likes"
}

// PostSummary is a post with its engagement counters, as listed in the feed.
type PostSummary struct {
	Post
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
}
