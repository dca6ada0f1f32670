// Package feed provides the community feed: posts, comments and likes.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// MaxContentLength bounds post and comment bodies, in bytes.
const MaxContentLength = 5000

// Feed errors.
var (
	ErrPostNotFound   = errors.New("post not found")
	ErrEmptyContent   = errors.New("content must not be empty")
	ErrContentTooLong = fmt.Errorf("content must be at most %d bytes", MaxContentLength)
)

// Repository interface for feed storage.
type Repository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id uint) (*models.Post, error)
	PostExists(ctx context.Context, id uint) (bool, error)
	ListPosts(ctx context.Context, limit, offset int) ([]models.PostSummary, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	ToggleLike(ctx context.Context, postID, userID uint) (bool, int64, error)
}

// XPAwarder grants XP for contributions.
type XPAwarder interface {
	Award(ctx context.Context, userID uint, req xp.Request) (xp.Result, error)
}

// Service handles feed operations.
type Service struct {
	repo Repository
	xp   XPAwarder
	log  *logger.Logger
}

// NewService creates a new feed service.
func NewService(repo *repository.FeedRepository, awarder *xp.Service, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, awarder, log)
}

// NewServiceWithInterfaces creates a new feed service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, awarder XPAwarder, log *logger.Logger) *Service {
	return &Service{repo: repo, xp: awarder, log: log.Component("feed")}
}

// PostResult is a created post and the XP it earned.
type PostResult struct {
	Post *models.Post `json:"post"`
	XP   xp.Result    `json:"xp"`
}

// CommentResult is a created comment and the XP it earned.
type CommentResult struct {
	Comment *models.Comment `json:"comment"`
	XP      xp.Result       `json:"xp"`
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

// CreatePost publishes a post and awards post_create XP. A refused or failed award does not
// undo the post.
func (s *Service) CreatePost(ctx context.Context, userID uint, content string) (*PostResult, error) {
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}

	post := &models.Post{UserID: userID, Content: content}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("post:%d", post.ID)
	return &PostResult{Post: post, XP: s.award(ctx, userID, models.XPActionPostCreate, ref)}, nil
}

// CreateComment adds a comment to an existing post and awards comment_create XP.
func (s *Service) CreateComment(ctx context.Context, userID, postID uint, content string) (*CommentResult, error) {
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.PostExists(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPostNotFound
	}

	comment := &models.Comment{PostID: postID, UserID: userID, Content: content}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("comment:%d", comment.ID)
	return &CommentResult{Comment: comment, XP: s.award(ctx, userID, models.XPActionCommentCreate, ref)}, nil
}

func (s *Service) award(ctx context.Context, userID uint, action models.XPAction, ref string) xp.Result {
	res, err := s.xp.Award(ctx, userID, xp.Request{Action: action, ReferenceID: &ref})
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Str("action", string(action)).Msg("Content saved without XP")
	}
	return res
}

// ToggleLike likes or unlikes a post.
func (s *Service) ToggleLike(ctx context.Context, userID, postID uint) (bool, int64, error) {
	exists, err := s.repo.PostExists(ctx, postID)
	if err != nil {
		return false, 0, err
	}
	if !exists {
		return false, 0, ErrPostNotFound
	}
	return s.repo.ToggleLike(ctx, postID, userID)
}

// ListPosts returns a page of the feed, newest first.
func (s *Service) ListPosts(ctx context.Context, limit, offset int) ([]models.PostSummary, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPosts(ctx, limit, offset)
}

// GetPost returns a post with its comments.
func (s *Service) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	return post, err
}
