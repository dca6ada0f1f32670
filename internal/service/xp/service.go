package xp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/leafline/internal/config"
	prommetrics "github.com/aimd54/leafline/internal/metrics"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/pkg/logger"
)

// ErrInvalidAmount is returned for admin adjustments of zero XP.
var ErrInvalidAmount = errors.New("adjustment amount must be non-zero")

// Ledger persists XP events and balances.
type Ledger interface {
	Award(ctx context.Context, userID uint, since time.Time, decide repository.DecideFunc) (*models.XPEvent, int64, error)
	GetBalance(ctx context.Context, userID uint) (int64, error)
	EventsSince(ctx context.Context, userID uint, since time.Time) ([]models.XPEvent, error)
	History(ctx context.Context, userID uint, limit, offset int) ([]models.XPEvent, error)
}

// AwardHook runs after an award has been committed.
type AwardHook func(ctx context.Context, userID uint, result Result)

// Service evaluates and records XP awards.
type Service struct {
	ledger    Ledger
	rules     *RuleTable
	evaluator *Evaluator
	formula   Formula
	loc       *time.Location
	hooks     []AwardHook
	now       func() time.Time
	log       *logger.Logger
}

// NewService creates a new XP service.
func NewService(repo *repository.XPRepository, rules *RuleTable, cfg *config.XPConfig, log *logger.Logger) (*Service, error) {
	return NewServiceWithInterfaces(repo, rules, cfg, log)
}

// NewServiceWithInterfaces creates a new XP service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(ledger Ledger, rules *RuleTable, cfg *config.XPConfig, log *logger.Logger) (*Service, error) {
	if rules == nil {
		rules = DefaultRules()
	}

	formula, err := ParseFormula(cfg.LevelFormula)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid xp timezone: %w", err)
	}

	return &Service{
		ledger:    ledger,
		rules:     rules,
		evaluator: NewEvaluator(rules, cfg.DailyTotalCap, cfg.ExemptAdminFromTotalCap),
		formula:   formula,
		loc:       loc,
		now:       time.Now,
		log:       log.Component("xp"),
	}, nil
}

// OnAward registers a hook called after every successful award. Not safe to call once serving.
func (s *Service) OnAward(hook AwardHook) {
	s.hooks = append(s.hooks, hook)
}

// Formula returns the configured level formula.
func (s *Service) Formula() Formula {
	return s.formula
}

// Location returns the time zone that defines the XP day.
func (s *Service) Location() *time.Location {
	return s.loc
}

// StartOfDay returns the UTC instant at which the XP day containing t began.
func (s *Service) StartOfDay(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).UTC()
}

// Award evaluates req for the user and, when eligible, records it.
//
// Business-rule rejections come back as an unsuccessful Result with a nil error. Store failures
// return a Result with ReasonStoreError and the underlying error.
func (s *Service) Award(ctx context.Context, userID uint, req Request) (Result, error) {
	if !req.Action.Valid() {
		prommetrics.RecordXPRejected(string(req.Action), string(ReasonInvalidAction))
		return rejected(ReasonInvalidAction), nil
	}

	start := time.Now()
	now := s.now().UTC()

	event, total, err := s.ledger.Award(ctx, userID, s.StartOfDay(now), func(today []models.XPEvent) (*models.XPEvent, error) {
		amount, reason := s.evaluator.Evaluate(today, req)
		if reason != "" {
			return nil, &rejection{reason: reason}
		}
		return &models.XPEvent{
			Action:      req.Action,
			Amount:      amount,
			ReferenceID: req.ReferenceID,
			Note:        req.Note,
			CreatedAt:   now,
		}, nil
	})
	prommetrics.ObserveXPAwardDuration(time.Since(start).Seconds())

	var rej *rejection
	if errors.As(err, &rej) {
		prommetrics.RecordXPRejected(string(req.Action), string(rej.reason))
		s.log.Debug().
			Uint("user_id", userID).
			Str("action", string(req.Action)).
			Str("reason", string(rej.reason)).
			Msg("XP award rejected")
		return rejected(rej.reason), nil
	}
	if err != nil {
		prommetrics.RecordXPError(string(req.Action))
		s.log.Error().
			Err(err).
			Uint("user_id", userID).
			Str("action", string(req.Action)).
			Msg("Failed to record XP award")
		return rejected(ReasonStoreError), fmt.Errorf("failed to award %s to user %d: %w", req.Action, userID, err)
	}

	prommetrics.RecordXPAwarded(string(req.Action), event.Amount)
	s.log.Info().
		Uint("user_id", userID).
		Str("action", string(req.Action)).
		Int("amount", event.Amount).
		Int64("total", total).
		Msg("XP awarded")

	result := Result{
		Success:   true,
		XPAwarded: event.Amount,
		NewTotal:  total,
		Event:     event,
	}
	for _, hook := range s.hooks {
		hook(ctx, userID, result)
	}
	return result, nil
}

// Adjust applies a signed admin correction to a user's balance.
func (s *Service) Adjust(ctx context.Context, adminID, userID uint, amount int, note string) (Result, error) {
	if amount == 0 {
		return Result{}, ErrInvalidAmount
	}
	if note == "" {
		note = fmt.Sprintf("adjusted by admin %d", adminID)
	}
	return s.Award(ctx, userID, Request{
		Action: models.XPActionAdminAdjustment,
		Amount: amount,
		Note:   note,
	})
}

// Summary is a user's XP standing.
type Summary struct {
	UserID        uint                     `json:"user_id"`
	TotalXP       int64                    `json:"total_xp"`
	Progress      Progress                 `json:"progress"`
	TodayEarned   int                      `json:"today_earned"`
	DailyTotalCap int                      `json:"daily_total_cap"`
	Remaining     int                      `json:"remaining_today"`
	TodayByAction map[models.XPAction]int  `json:"today_by_action"`
	ActionsLeft   map[models.XPAction]*int `json:"actions_left_today"`
}

// Summary returns the user's total, level and what they can still earn today.
func (s *Service) Summary(ctx context.Context, userID uint) (*Summary, error) {
	total, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get xp balance: %w", err)
	}

	today, err := s.ledger.EventsSince(ctx, userID, s.StartOfDay(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to get today's xp events: %w", err)
	}

	earned := TodayTotal(today)
	remaining := s.evaluator.DailyTotalCap() - earned
	if remaining < 0 {
		remaining = 0
	}

	byAction := make(map[models.XPAction]int)
	for _, ev := range today {
		byAction[ev.Action]++
	}

	left := make(map[models.XPAction]*int)
	for action, rule := range s.rules.All() {
		if rule.DailyCap == nil {
			left[action] = nil
			continue
		}
		n := *rule.DailyCap - byAction[action]
		if n < 0 {
			n = 0
		}
		left[action] = &n
	}

	return &Summary{
		UserID:        userID,
		TotalXP:       total,
		Progress:      ProgressFor(total, s.formula),
		TodayEarned:   earned,
		DailyTotalCap: s.evaluator.DailyTotalCap(),
		Remaining:     remaining,
		TodayByAction: byAction,
		ActionsLeft:   left,
	}, nil
}

// RuleInfo is one published rule.
type RuleInfo struct {
	Action   models.XPAction `json:"action"`
	Base     *int            `json:"base"`
	DailyCap *int            `json:"daily_cap"`
	Cooldown Cooldown        `json:"cooldown,omitempty"`
}

// RulesInfo is the rule table as shown to users.
type RulesInfo struct {
	Rules         []RuleInfo `json:"rules"`
	DailyTotalCap int        `json:"daily_total_cap"`
	LevelFormula  Formula    `json:"level_formula"`
	Timezone      string     `json:"timezone"`
}

// Rules returns the enforced rule table in a stable order.
func (s *Service) Rules() RulesInfo {
	all := s.rules.All()
	infos := make([]RuleInfo, 0, len(all))
	for _, action := range models.AllXPActions() {
		rule := all[action]
		infos = append(infos, RuleInfo{
			Action:   action,
			Base:     rule.Base,
			DailyCap: rule.DailyCap,
			Cooldown: rule.Cooldown,
		})
	}
	return RulesInfo{
		Rules:         infos,
		DailyTotalCap: s.evaluator.DailyTotalCap(),
		LevelFormula:  s.formula,
		Timezone:      s.loc.String(),
	}
}

// History returns a page of the user's events, newest first.
func (s *Service) History(ctx context.Context, userID uint, limit, offset int) ([]models.XPEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.ledger.History(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get xp history: %w", err)
	}
	return events, nil
}
