package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/leafline/internal/models"
)

// FeedRepository handles posts, comments and likes.
type FeedRepository struct {
	db *DB
}

// NewFeedRepository creates a new feed repository.
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// CreatePost stores a new post.
func (r *FeedRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// GetPost retrieves a post with its author and comments, oldest comment first.
func (r *FeedRepository) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Comments.Author").
		First(&post, id).Error
	if notFound(err) {
		return nil, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %d: %w", id, err)
	}
	return &post, nil
}

// PostExists reports whether a post exists.
func (r *FeedRepository) PostExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check post %d: %w", id, err)
	}
	return count > 0, nil
}

// ListPosts returns a page of posts, newest first, with like and comment counts.
func (r *FeedRepository) ListPosts(ctx context.Context, limit, offset int) ([]models.PostSummary, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Preload("Author").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	if len(posts) == 0 {
		return []models.PostSummary{}, nil
	}

	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	likes, err := r.countByPost(ctx, &models.PostLike{}, ids)
	if err != nil {
		return nil, err
	}
	comments, err := r.countByPost(ctx, &models.Comment{}, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.PostSummary, len(posts))
	for i, p := range posts {
		summaries[i] = models.PostSummary{
			Post:         p,
			LikeCount:    likes[p.ID],
			CommentCount: comments[p.ID],
		}
	}
	return summaries, nil
}

func (r *FeedRepository) countByPost(ctx context.Context, model interface{}, postIDs []uint) (map[uint]int64, error) {
	type row struct {
		PostID uint
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(model).
		Select("post_id, COUNT(*) AS count").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count by post: %w", err)
	}

	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.PostID] = r.Count
	}
	return out, nil
}

// CreateComment stores a new comment.
func (r *FeedRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// ToggleLike likes the post for the user, or removes the like if present.
// It returns whether the post is liked afterwards and the post's like count.
func (r *FeedRepository) ToggleLike(ctx context.Context, postID, userID uint) (bool, int64, error) {
	var (
		liked bool
		count int64
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove like: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.PostLike{PostID: postID, UserID: userID}).Error; err != nil {
				return fmt.Errorf("failed to add like: %w", err)
			}
			liked = true
		}
		return tx.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		return false, 0, err
	}
	return liked, count, nil
}
