package xp

import "github.com/aimd54/leafline/internal/models"

// Reason is the machine-readable outcome of a failed award.
type Reason string

// Award failure reasons.
const (
	ReasonInvalidAction         Reason = "invalid_action"
	ReasonDailyActionCapReached Reason = "daily_action_cap_reached"
	ReasonDailyTotalCapReached  Reason = "daily_total_cap_reached"
	ReasonAlreadyCompletedToday Reason = "already_completed_today"
	ReasonStoreError            Reason = "store_error"
)

// IsRejection reports whether r is a business-rule outcome rather than an infrastructure failure.
func (r Reason) IsRejection() bool {
	switch r {
	case ReasonDailyActionCapReached, ReasonDailyTotalCapReached, ReasonAlreadyCompletedToday:
		return true
	}
	return false
}

// Message is the user-facing text for r.
func (r Reason) Message() string {
	switch r {
	case ReasonInvalidAction:
		return "This activity does not earn XP."
	case ReasonDailyActionCapReached:
		return "You've already earned the maximum XP for this activity today."
	case ReasonDailyTotalCapReached:
		return "You've reached today's XP limit. Come back tomorrow!"
	case ReasonAlreadyCompletedToday:
		return "You've already earned XP for this today."
	case ReasonStoreError:
		return "We couldn't record your XP right now. Please try again later."
	}
	return ""
}

// Result is the outcome of an award attempt.
type Result struct {
	Success   bool            `json:"success"`
	XPAwarded int             `json:"xp_awarded"`
	NewTotal  int64           `json:"new_total"`
	Reason    Reason          `json:"reason,omitempty"`
	Event     *models.XPEvent `json:"-"`
}

func rejected(reason Reason) Result {
	return Result{Reason: reason}
}

// rejection carries a Reason out of the ledger transaction so that nothing is written.
type rejection struct {
	reason Reason
}

func (r *rejection) Error() string {
	return "xp award rejected: " + string(r.reason)
}
