// Package dashboard provides REST API handlers for the progression dashboard.
// It exposes endpoints for leaderboards, user statistics, achievements, and achievement holders.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/achievements"
	"github.com/aimd54/leafline/internal/service/leaderboard"
	"github.com/aimd54/leafline/pkg/logger"
)

// AchievementService interface for achievement operations.
type AchievementService interface {
	UserAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error)
	Catalog(ctx context.Context) ([]models.Achievement, error)
	GetByID(ctx context.Context, id uint) (*models.Achievement, error)
	Holders(ctx context.Context, id uint) ([]models.User, error)
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, period string, limit int) ([]leaderboard.Entry, error)
	GetUserStats(ctx context.Context, userID uint, period string) (*leaderboard.UserStats, error)
}

// Handler handles dashboard API requests.
type Handler struct {
	achievementService AchievementService
	leaderboardService LeaderboardService
	log                *logger.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(achievementService *achievements.Service, leaderboardService *leaderboard.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(achievementService, leaderboardService, log)
}

// NewHandlerWithInterfaces creates a new dashboard handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(achievementService AchievementService, leaderboardService LeaderboardService, log *logger.Logger) *Handler {
	return &Handler{
		achievementService: achievementService,
		leaderboardService: leaderboardService,
		log:                log.Component("api.dashboard"),
	}
}

// GetLeaderboard returns the XP leaderboard.
// GET /api/v1/leaderboard?period=week&limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	period := c.DefaultQuery("period", leaderboard.PeriodAllTime)
	limit, err := h.parseLimit(c, 10, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validatePeriod(period); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.GetLeaderboard(c.Request.Context(), period, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	h.log.Debug().
		Str("period", period).
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"period":        period,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserStats returns statistics for a specific user.
// GET /api/v1/users/:id/stats?period=month.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	period := c.DefaultQuery("period", leaderboard.PeriodAllTime)
	if err := h.validatePeriod(period); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.leaderboardService.GetUserStats(c.Request.Context(), userID, period)
	if errors.Is(err, repository.ErrNotFound) {
		h.errorResponse(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserAchievements returns achievements unlocked by a specific user.
// GET /api/v1/users/:id/achievements.
func (h *Handler) GetUserAchievements(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	unlocked, err := h.achievementService.UserAchievements(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user achievements")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":            userID,
		"achievements":       unlocked,
		"total_achievements": len(unlocked),
		"generated_at":       time.Now().UTC(),
	})
}

// GetCatalog returns every achievement that can be unlocked.
// GET /api/v1/achievements.
func (h *Handler) GetCatalog(c *gin.Context) {
	catalog, err := h.achievementService.Catalog(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get achievement catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve achievement catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements":       catalog,
		"total_achievements": len(catalog),
		"generated_at":       time.Now().UTC(),
	})
}

// GetAchievement returns details for a specific achievement.
// GET /api/v1/achievements/:id.
func (h *Handler) GetAchievement(c *gin.Context) {
	id, err := h.parseID(c, "achievement")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	achievement, err := h.achievementService.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		h.errorResponse(c, http.StatusNotFound, "Achievement not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint("achievement_id", id).Msg("Failed to get achievement")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve achievement")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievement":  achievement,
		"generated_at": time.Now().UTC(),
	})
}

// GetHolders returns users who unlocked a specific achievement.
// GET /api/v1/achievements/:id/holders?limit=50.
func (h *Handler) GetHolders(c *gin.Context) {
	id, err := h.parseID(c, "achievement")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := h.parseLimit(c, 50, 1000)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	holders, err := h.achievementService.Holders(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Uint("achievement_id", id).Msg("Failed to get achievement holders")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve achievement holders")
		return
	}

	totalHolders := len(holders)
	if len(holders) > limit {
		holders = holders[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"achievement_id": id,
		"holders":        holders,
		"total_holders":  totalHolders,
		"limited_to":     len(holders),
		"generated_at":   time.Now().UTC(),
	})
}

// parseID extracts and validates a numeric ID from the URL parameter.
func (h *Handler) parseID(c *gin.Context, kind string) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit, maxLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > maxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", maxLimit)
	}
	return limit, nil
}

func (h *Handler) validatePeriod(period string) error {
	if !leaderboard.ValidPeriod(period) {
		return fmt.Errorf("invalid period: %s (valid: day, week, month, year, all_time)", period)
	}
	return nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
