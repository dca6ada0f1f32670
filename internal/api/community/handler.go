// Package community provides REST API handlers for the community feed.
package community

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/leafline/internal/api/middleware"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/service/feed"
	"github.com/aimd54/leafline/pkg/logger"
)

// FeedService interface for feed operations.
type FeedService interface {
	CreatePost(ctx context.Context, userID uint, content string) (*feed.PostResult, error)
	CreateComment(ctx context.Context, userID, postID uint, content string) (*feed.CommentResult, error)
	ToggleLike(ctx context.Context, userID, postID uint) (bool, int64, error)
	ListPosts(ctx context.Context, limit, offset int) ([]models.PostSummary, error)
	GetPost(ctx context.Context, id uint) (*models.Post, error)
}

// Handler handles feed API requests.
type Handler struct {
	feedService FeedService
	log         *logger.Logger
}

// NewHandler creates a new feed handler.
func NewHandler(feedService *feed.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(feedService, log)
}

// NewHandlerWithInterfaces creates a new feed handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(feedService FeedService, log *logger.Logger) *Handler {
	return &Handler{
		feedService: feedService,
		log:         log.Component("api.feed"),
	}
}

// ContentRequest is the body for creating posts and comments.
type ContentRequest struct {
	Content string `json:"content"`
}

// ListPosts returns a page of the feed.
// GET /api/v1/posts?limit=20&offset=0.
func (h *Handler) ListPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	posts, err := h.feedService.ListPosts(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list posts")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve posts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": posts,
		"count": len(posts),
	})
}

// GetPost returns a post with its comments.
// GET /api/v1/posts/:id.
func (h *Handler) GetPost(c *gin.Context) {
	postID, err := h.parsePostID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.feedService.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": post})
}

// CreatePost publishes a post for the current user.
// POST /api/v1/posts.
func (h *Handler) CreatePost(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.feedService.CreatePost(c.Request.Context(), user.ID, req.Content)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// CreateComment adds a comment to a post.
// POST /api/v1/posts/:id/comments.
func (h *Handler) CreateComment(c *gin.Context) {
	user := middleware.CurrentUser(c)

	postID, err := h.parsePostID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.feedService.CreateComment(c.Request.Context(), user.ID, postID, req.Content)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ToggleLike likes or unlikes a post.
// POST /api/v1/posts/:id/like.
func (h *Handler) ToggleLike(c *gin.Context) {
	user := middleware.CurrentUser(c)

	postID, err := h.parsePostID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	liked, count, err := h.feedService.ToggleLike(c.Request.Context(), user.ID, postID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"post_id":    postID,
		"liked":      liked,
		"like_count": count,
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, feed.ErrPostNotFound):
		h.errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, feed.ErrEmptyContent), errors.Is(err, feed.ErrContentTooLong):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Feed request failed")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to process request")
	}
}

// parsePostID extracts and validates the post ID from the URL parameter.
func (h *Handler) parsePostID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid post ID: %s", idStr)
	}
	return uint(id), nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
