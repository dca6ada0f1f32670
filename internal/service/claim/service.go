package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/leafline/internal/config"
	prommetrics "github.com/aimd54/leafline/internal/metrics"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// Claim errors.
var (
	ErrInvalidToken   = errors.New("invalid or expired claim token")
	ErrPotNotFound    = errors.New("pot not found")
	ErrAlreadyClaimed = errors.New("pot already claimed")
)

// PotRepository interface for pot operations.
type PotRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Pot, error)
	Claim(ctx context.Context, code string, userID uint, at time.Time) (*models.Pot, error)
	ListByOwner(ctx context.Context, userID uint) ([]models.Pot, error)
}

// XPAwarder grants XP for a linked pot.
type XPAwarder interface {
	Award(ctx context.Context, userID uint, req xp.Request) (xp.Result, error)
}

// Result is the outcome of a successful claim.
type Result struct {
	Pot *models.Pot `json:"pot"`
	XP  xp.Result   `json:"xp"`
}

// Service issues claim tokens and links pots to users.
type Service struct {
	pots   PotRepository
	xp     XPAwarder
	tokens *TokenIssuer
	log    *logger.Logger
}

// NewService creates a new claim service.
func NewService(pots *repository.PotRepository, awarder *xp.Service, cfg *config.ClaimConfig, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(pots, awarder, NewTokenIssuer(cfg.TokenSecret, time.Duration(cfg.TokenTTL)*time.Second, cfg.Issuer), log)
}

// NewServiceWithInterfaces creates a new claim service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(pots PotRepository, awarder XPAwarder, tokens *TokenIssuer, log *logger.Logger) *Service {
	return &Service{
		pots:   pots,
		xp:     awarder,
		tokens: tokens,
		log:    log.Component("claim"),
	}
}

// IssueToken returns a claim token for an unclaimed pot.
func (s *Service) IssueToken(ctx context.Context, potCode string) (string, time.Time, error) {
	pot, err := s.pots.GetByCode(ctx, potCode)
	if errors.Is(err, repository.ErrNotFound) {
		prommetrics.RecordClaimToken("not_found")
		return "", time.Time{}, ErrPotNotFound
	}
	if err != nil {
		prommetrics.RecordClaimToken("error")
		return "", time.Time{}, err
	}
	if pot.IsClaimed() {
		prommetrics.RecordClaimToken("already_claimed")
		return "", time.Time{}, ErrAlreadyClaimed
	}

	token, expiresAt, err := s.tokens.Generate(pot.Code)
	if err != nil {
		prommetrics.RecordClaimToken("error")
		return "", time.Time{}, fmt.Errorf("failed to sign claim token: %w", err)
	}

	prommetrics.RecordClaimToken("issued")
	s.log.Debug().Str("pot_code", pot.Code).Time("expires_at", expiresAt).Msg("Claim token issued")
	return token, expiresAt, nil
}

// Claim links the pot named by token to the user and awards pot_link XP.
// The pot stays linked even when the XP award is refused or fails, and the award is not retried.
func (s *Service) Claim(ctx context.Context, userID uint, token string) (*Result, error) {
	claims := s.tokens.Verify(token)
	if claims == nil {
		prommetrics.RecordPotClaim("invalid_token")
		return nil, ErrInvalidToken
	}

	pot, err := s.pots.Claim(ctx, claims.PotCode, userID, time.Now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		prommetrics.RecordPotClaim("not_found")
		return nil, ErrPotNotFound
	case errors.Is(err, repository.ErrPotAlreadyClaimed):
		prommetrics.RecordPotClaim("already_claimed")
		return nil, ErrAlreadyClaimed
	case err != nil:
		prommetrics.RecordPotClaim("error")
		s.log.Error().Err(err).Str("pot_code", claims.PotCode).Uint("user_id", userID).Msg("Failed to claim pot")
		return nil, fmt.Errorf("failed to claim pot: %w", err)
	}

	prommetrics.RecordPotClaim("claimed")
	s.log.Info().Str("pot_code", pot.Code).Uint("user_id", userID).Msg("Pot claimed")

	code := pot.Code
	award, err := s.xp.Award(ctx, userID, xp.Request{
		Action:      models.XPActionPotLink,
		ReferenceID: &code,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("pot_code", pot.Code).Uint("user_id", userID).Msg("Pot claimed but XP award failed")
	} else if !award.Success {
		s.log.Info().
			Str("pot_code", pot.Code).
			Uint("user_id", userID).
			Str("reason", string(award.Reason)).
			Msg("Pot claimed without XP")
	}

	return &Result{Pot: pot, XP: award}, nil
}

// Owned returns the pots linked to the user.
func (s *Service) Owned(ctx context.Context, userID uint) ([]models.Pot, error) {
	return s.pots.ListByOwner(ctx, userID)
}
