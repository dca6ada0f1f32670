// Package claims provides REST API handlers for linking physical pots to accounts.
package claims

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/leafline/internal/api/middleware"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/service/claim"
	"github.com/aimd54/leafline/pkg/logger"
)

// ClaimService interface for claim operations.
type ClaimService interface {
	IssueToken(ctx context.Context, potCode string) (string, time.Time, error)
	Claim(ctx context.Context, userID uint, token string) (*claim.Result, error)
	Owned(ctx context.Context, userID uint) ([]models.Pot, error)
}

// Handler handles claim API requests.
type Handler struct {
	claimService ClaimService
	log          *logger.Logger
}

// NewHandler creates a new claim handler.
func NewHandler(claimService *claim.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(claimService, log)
}

// NewHandlerWithInterfaces creates a new claim handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(claimService ClaimService, log *logger.Logger) *Handler {
	return &Handler{
		claimService: claimService,
		log:          log.Component("api.claims"),
	}
}

// TokenRequest is the body of POST /api/v1/claims/token.
type TokenRequest struct {
	PotCode string `json:"pot_code" binding:"required"`
}

// ClaimRequest is the body of POST /api/v1/claims.
type ClaimRequest struct {
	Token string `json:"token" binding:"required"`
}

// IssueToken returns a short-lived claim token for an unclaimed pot.
// POST /api/v1/claims/token.
func (h *Handler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "pot_code is required")
		return
	}

	code := strings.TrimSpace(req.PotCode)
	token, expiresAt, err := h.claimService.IssueToken(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err, code)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}

const unrewardedClaimNote = "the pot is linked to your account; pot_link XP for this claim will not be granted later"

// Claim links the pot in the token to the current user.
// POST /api/v1/claims.
func (h *Handler) Claim(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "token is required")
		return
	}

	result, err := h.claimService.Claim(c.Request.Context(), user.ID, req.Token)
	if err != nil {
		h.handleError(c, err, "")
		return
	}

	response := gin.H{
		"pot": result.Pot,
		"xp":  result.XP,
	}
	// The claim is committed before the award, so a refused award is final for this pot.
	if !result.XP.Success {
		response["xp_message"] = result.XP.Reason.Message()
		response["xp_note"] = unrewardedClaimNote
	}
	c.JSON(http.StatusCreated, response)
}

// ListMine returns the pots linked to the current user.
// GET /api/v1/users/me/pots.
func (h *Handler) ListMine(c *gin.Context) {
	user := middleware.CurrentUser(c)

	pots, err := h.claimService.Owned(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to list pots")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve pots")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pots":  pots,
		"count": len(pots),
	})
}

func (h *Handler) handleError(c *gin.Context, err error, potCode string) {
	switch {
	case errors.Is(err, claim.ErrInvalidToken):
		h.errorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, claim.ErrPotNotFound):
		h.errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, claim.ErrAlreadyClaimed):
		h.errorResponse(c, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("pot_code", potCode).Msg("Claim request failed")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to process claim")
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
