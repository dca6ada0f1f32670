package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordXPAwarded(t *testing.T) {
	XPAwardsTotal.Reset()
	XPGrantedTotal.Reset()

	RecordXPAwarded("post_create", 3)
	RecordXPAwarded("post_create", 3)
	RecordXPAwarded("admin_adjustment", -10)

	count := testutil.ToFloat64(XPAwardsTotal.WithLabelValues("post_create", "awarded"))
	if count != 2 {
		t.Errorf("Expected post_create awarded count = 2, got %f", count)
	}

	granted := testutil.ToFloat64(XPGrantedTotal.WithLabelValues("post_create"))
	if granted != 6 {
		t.Errorf("Expected 6 XP granted for post_create, got %f", granted)
	}

	// Negative adjustments count as awards but never decrease the granted counter.
	if n := testutil.CollectAndCount(XPGrantedTotal); n != 1 {
		t.Errorf("Expected 1 granted series, got %d", n)
	}
}

func TestRecordXPRejected(t *testing.T) {
	XPAwardsTotal.Reset()
	XPRejectionsTotal.Reset()

	RecordXPRejected("article_read", "already_completed_today")
	RecordXPRejected("article_read", "already_completed_today")
	RecordXPRejected("post_create", "daily_action_cap_reached")

	count := testutil.ToFloat64(XPRejectionsTotal.WithLabelValues("article_read", "already_completed_today"))
	if count != 2 {
		t.Errorf("Expected 2 cooldown rejections, got %f", count)
	}

	count = testutil.ToFloat64(XPAwardsTotal.WithLabelValues("post_create", "rejected"))
	if count != 1 {
		t.Errorf("Expected 1 rejected post_create, got %f", count)
	}
}

func TestRecordXPError(t *testing.T) {
	XPAwardsTotal.Reset()

	RecordXPError("comment_create")

	count := testutil.ToFloat64(XPAwardsTotal.WithLabelValues("comment_create", "error"))
	if count != 1 {
		t.Errorf("Expected 1 error, got %f", count)
	}
}

func TestRecordRateLimitDecision(t *testing.T) {
	RateLimitDecisionsTotal.Reset()

	RecordRateLimitDecision("claim_token", true)
	RecordRateLimitDecision("claim_token", true)
	RecordRateLimitDecision("claim_token", false)

	allowed := testutil.ToFloat64(RateLimitDecisionsTotal.WithLabelValues("claim_token", "allowed"))
	denied := testutil.ToFloat64(RateLimitDecisionsTotal.WithLabelValues("claim_token", "denied"))
	if allowed != 2 || denied != 1 {
		t.Errorf("Expected 2 allowed and 1 denied, got %f and %f", allowed, denied)
	}
}

func TestRecordClaims(t *testing.T) {
	ClaimTokensIssuedTotal.Reset()
	PotClaimsTotal.Reset()

	RecordClaimToken("issued")
	RecordPotClaim("claimed")
	RecordPotClaim("already_claimed")

	if v := testutil.ToFloat64(ClaimTokensIssuedTotal.WithLabelValues("issued")); v != 1 {
		t.Errorf("Expected 1 issued token, got %f", v)
	}
	if v := testutil.ToFloat64(PotClaimsTotal.WithLabelValues("already_claimed")); v != 1 {
		t.Errorf("Expected 1 already_claimed, got %f", v)
	}
}

func TestSchedulerMetrics(t *testing.T) {
	SchedulerJobsRunTotal.Reset()
	SchedulerNotificationsFailedTotal.Reset()

	RecordSchedulerJobRun("digest", "success")
	RecordSchedulerNotificationFailed("webhook_error")
	SetSchedulerLastRun("digest")
	ObserveSchedulerJobDuration("digest", 1.5)

	if v := testutil.ToFloat64(SchedulerJobsRunTotal.WithLabelValues("digest", "success")); v != 1 {
		t.Errorf("Expected 1 digest run, got %f", v)
	}
	if v := testutil.ToFloat64(SchedulerNotificationsFailedTotal.WithLabelValues("webhook_error")); v != 1 {
		t.Errorf("Expected 1 failed notification, got %f", v)
	}
	if v := testutil.ToFloat64(SchedulerLastRunTimestamp.WithLabelValues("digest")); v <= 0 {
		t.Errorf("Expected last run timestamp to be set, got %f", v)
	}
}

func TestAchievementMetrics(t *testing.T) {
	AchievementsAwardedTotal.Reset()
	ActiveAchievementHolders.Reset()

	RecordAchievementAwarded("Seedling")
	SetActiveAchievementHolders("Seedling", 7)

	if v := testutil.ToFloat64(AchievementsAwardedTotal.WithLabelValues("Seedling")); v != 1 {
		t.Errorf("Expected 1 award, got %f", v)
	}
	if v := testutil.ToFloat64(ActiveAchievementHolders.WithLabelValues("Seedling")); v != 7 {
		t.Errorf("Expected 7 holders, got %f", v)
	}
}
