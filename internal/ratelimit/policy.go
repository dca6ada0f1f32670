package ratelimit

import (
	"context"
	"time"

	"github.com/aimd54/leafline/internal/config"
	prommetrics "github.com/aimd54/leafline/internal/metrics"
)

// Policy names.
const (
	PolicyClaimToken    = "claim_token"
	PolicyClaimExecute  = "claim_execute"
	PolicyPostCreate    = "post_create"
	PolicyCommentCreate = "comment_create"
)

// Policy is a named limit applied to keys under its own prefix.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// DefaultPolicies returns the built-in policies.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyClaimToken:    {Name: PolicyClaimToken, Limit: 5, Window: time.Minute},
		PolicyClaimExecute:  {Name: PolicyClaimExecute, Limit: 3, Window: time.Hour},
		PolicyPostCreate:    {Name: PolicyPostCreate, Limit: 10, Window: time.Hour},
		PolicyCommentCreate: {Name: PolicyCommentCreate, Limit: 30, Window: time.Hour},
	}
}

// PoliciesFromConfig applies configured overrides to the defaults. Overrides may also add policies.
func PoliciesFromConfig(cfg *config.RateLimitConfig) map[string]Policy {
	policies := DefaultPolicies()
	for name, override := range cfg.Policies {
		policies[name] = Policy{
			Name:   name,
			Limit:  override.Limit,
			Window: time.Duration(override.Window) * time.Second,
		}
	}
	return policies
}

// Key builds the limiter key for subject under this policy.
func (p Policy) Key(subject string) string {
	return p.Name + ":" + subject
}

// Allow checks subject against the policy and records the decision.
func (p Policy) Allow(ctx context.Context, l Limiter, subject string) (bool, error) {
	allowed, err := l.Allow(ctx, p.Key(subject), p.Limit, p.Window)
	if err != nil {
		return false, err
	}
	prommetrics.RecordRateLimitDecision(p.Name, allowed)
	return allowed, nil
}
