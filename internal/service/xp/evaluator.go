package xp

import (
	"github.com/aimd54/leafline/internal/models"
)

// Request is one award attempt.
type Request struct {
	Action models.XPAction
	// Amount is used only by admin adjustments and may be negative.
	Amount      int
	ReferenceID *string
	Note        string
}

// Evaluator applies a rule table and the daily total cap to a user's events of the current day.
// It holds no state besides its configuration and is safe for concurrent use.
type Evaluator struct {
	rules         *RuleTable
	dailyTotalCap int
	exemptAdmin   bool
}

// NewEvaluator creates an evaluator. When exemptAdmin is set, admin adjustments skip the daily total cap.
func NewEvaluator(rules *RuleTable, dailyTotalCap int, exemptAdmin bool) *Evaluator {
	return &Evaluator{
		rules:         rules,
		dailyTotalCap: dailyTotalCap,
		exemptAdmin:   exemptAdmin,
	}
}

// DailyTotalCap returns the configured cap on XP earned per day.
func (e *Evaluator) DailyTotalCap() int {
	return e.dailyTotalCap
}

// Evaluate returns the amount to award for req given today's events, or the reason it is refused.
// Checks run in order and stop at the first failure: rule lookup, per-action daily cap,
// per-reference cooldown, then the daily total.
func (e *Evaluator) Evaluate(today []models.XPEvent, req Request) (int, Reason) {
	rule, ok := e.rules.Lookup(req.Action)
	if !ok {
		return 0, ReasonInvalidAction
	}

	if rule.DailyCap != nil {
		count := 0
		for _, ev := range today {
			if ev.Action == req.Action {
				count++
			}
		}
		if count >= *rule.DailyCap {
			return 0, ReasonDailyActionCapReached
		}
	}

	if rule.Cooldown == CooldownPerReferenceDaily && req.ReferenceID != nil {
		for _, ev := range today {
			if ev.Action == req.Action && ev.ReferenceID != nil && *ev.ReferenceID == *req.ReferenceID {
				return 0, ReasonAlreadyCompletedToday
			}
		}
	}

	amount := req.Amount
	if rule.Base != nil {
		amount = *rule.Base
	}

	// An award that would push the day past the cap is refused whole, never clamped.
	if !(e.exemptAdmin && req.Action == models.XPActionAdminAdjustment) {
		total := TodayTotal(today)
		if total >= e.dailyTotalCap || (amount > 0 && total+amount > e.dailyTotalCap) {
			return 0, ReasonDailyTotalCapReached
		}
	}

	return amount, ""
}

// TodayTotal sums the amounts of events.
func TodayTotal(events []models.XPEvent) int {
	total := 0
	for _, ev := range events {
		total += ev.Amount
	}
	return total
}
