// Package rewards provides REST API handlers for XP balances, rules and awards.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/leafline/internal/api/middleware"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// XPService interface for XP operations.
type XPService interface {
	Award(ctx context.Context, userID uint, req xp.Request) (xp.Result, error)
	Adjust(ctx context.Context, adminID, userID uint, amount int, note string) (xp.Result, error)
	Summary(ctx context.Context, userID uint) (*xp.Summary, error)
	Rules() xp.RulesInfo
	History(ctx context.Context, userID uint, limit, offset int) ([]models.XPEvent, error)
}

// UserLookup resolves the target of an admin adjustment.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Actions clients may report directly. The others are awarded by the flows that produce them.
var clientActions = map[models.XPAction]bool{
	models.XPActionArticleRead:   true,
	models.XPActionGameBlockPlay: true,
}

const maxReferenceLength = 255

// Handler handles XP API requests.
type Handler struct {
	xpService XPService
	users     UserLookup
	log       *logger.Logger
}

// NewHandler creates a new XP handler.
func NewHandler(xpService *xp.Service, users *repository.UserRepository, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(xpService, users, log)
}

// NewHandlerWithInterfaces creates a new XP handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(xpService XPService, users UserLookup, log *logger.Logger) *Handler {
	return &Handler{
		xpService: xpService,
		users:     users,
		log:       log.Component("api.xp"),
	}
}

// AwardRequest is the body of POST /api/v1/xp/award.
type AwardRequest struct {
	Action      models.XPAction `json:"action" binding:"required"`
	ReferenceID string          `json:"reference_id"`
}

// AdjustRequest is the body of POST /api/v1/admin/xp/adjust.
type AdjustRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Amount int    `json:"amount" binding:"required"`
	Note   string `json:"note"`
}

// GetRules returns the enforced rule table.
// GET /api/v1/xp/rules.
func (h *Handler) GetRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.xpService.Rules())
}

// Award records a client-reported activity for the current user.
// POST /api/v1/xp/award.
func (h *Handler) Award(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Action.Valid() {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("unknown action: %s", req.Action))
		return
	}
	if !clientActions[req.Action] {
		h.errorResponse(c, http.StatusForbidden, fmt.Sprintf("action %s cannot be reported directly", req.Action))
		return
	}

	ref := strings.TrimSpace(req.ReferenceID)
	if len(ref) > maxReferenceLength {
		h.errorResponse(c, http.StatusBadRequest, "reference_id is too long")
		return
	}
	if req.Action == models.XPActionArticleRead && ref == "" {
		h.errorResponse(c, http.StatusBadRequest, "reference_id is required for article_read")
		return
	}

	awardReq := xp.Request{Action: req.Action}
	if ref != "" {
		awardReq.ReferenceID = &ref
	}

	result, err := h.xpService.Award(c.Request.Context(), user.ID, awardReq)
	h.respondResult(c, result, err)
}

// Adjust applies a signed correction to a user's balance.
// POST /api/v1/admin/xp/adjust.
func (h *Handler) Adjust(c *gin.Context) {
	admin := middleware.CurrentUser(c)

	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.users.GetByID(c.Request.Context(), req.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.errorResponse(c, http.StatusNotFound, fmt.Sprintf("user %d not found", req.UserID))
			return
		}
		h.log.Error().Err(err).Uint("user_id", req.UserID).Msg("Failed to look up adjustment target")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to look up user")
		return
	}

	result, err := h.xpService.Adjust(c.Request.Context(), admin.ID, req.UserID, req.Amount, req.Note)
	if errors.Is(err, xp.ErrInvalidAmount) {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if result.Success {
		h.log.Info().
			Uint("admin_id", admin.ID).
			Uint("user_id", req.UserID).
			Int("amount", req.Amount).
			Msg("Admin XP adjustment applied")
	}
	h.respondResult(c, result, err)
}

// GetMyXP returns the current user's XP summary.
// GET /api/v1/users/me/xp.
func (h *Handler) GetMyXP(c *gin.Context) {
	user := middleware.CurrentUser(c)

	summary, err := h.xpService.Summary(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to get XP summary")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve XP summary")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetHistory returns a user's XP events. Users may only read their own history unless admin.
// GET /api/v1/users/:id/xp/history?limit=20&offset=0.
func (h *Handler) GetHistory(c *gin.Context) {
	user := middleware.CurrentUser(c)

	userID, err := h.parseUserID(c, user)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if userID != user.ID && !user.IsAdmin() {
		h.errorResponse(c, http.StatusForbidden, "cannot read another user's history")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, err := h.xpService.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get XP history")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve XP history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"events":  events,
		"count":   len(events),
	})
}

// respondResult maps an award outcome to an HTTP response.
func (h *Handler) respondResult(c *gin.Context, result xp.Result, err error) {
	if result.Success {
		c.JSON(http.StatusOK, result)
		return
	}
	if err != nil && result.Reason != xp.ReasonStoreError {
		h.log.Error().Err(err).Msg("Unexpected award failure")
		result.Reason = xp.ReasonStoreError
	}

	c.JSON(StatusForReason(result.Reason), gin.H{
		"success":   false,
		"reason":    result.Reason,
		"error":     result.Reason.Message(),
		"timestamp": time.Now().UTC(),
	})
}

// StatusForReason maps a failure reason to its HTTP status.
func StatusForReason(reason xp.Reason) int {
	switch reason {
	case xp.ReasonInvalidAction:
		return http.StatusBadRequest
	case xp.ReasonDailyActionCapReached, xp.ReasonDailyTotalCapReached:
		return http.StatusTooManyRequests
	case xp.ReasonAlreadyCompletedToday:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// parseUserID resolves the :id parameter, accepting "me" for the current user.
func (h *Handler) parseUserID(c *gin.Context, current *models.User) (uint, error) {
	idStr := c.Param("id")
	if idStr == "me" {
		return current.ID, nil
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %s", idStr)
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
