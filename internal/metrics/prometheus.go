// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the plant community service.
var (
	// XP awarding.
	XPAwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awards_total",
			Help: "Total number of XP award attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	XPGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_granted_total",
			Help: "Total XP granted by action (negative adjustments are not subtracted)",
		},
		[]string{"action"},
	)

	XPRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_rejections_total",
			Help: "Total number of XP award rejections by reason",
		},
		[]string{"action", "reason"},
	)

	XPAwardDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xp_award_duration_seconds",
			Help:    "Time taken to evaluate and persist an XP award",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
	)

	// Rate limiting.
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total number of rate limit checks by policy and decision",
		},
		[]string{"policy", "decision"},
	)

	// Claims.
	ClaimTokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_tokens_issued_total",
			Help: "Total number of claim token requests by outcome",
		},
		[]string{"outcome"},
	)

	PotClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pot_claims_total",
			Help: "Total number of pot claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerNotificationsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_notifications_sent_total",
			Help: "Total successful notifications sent",
		},
	)

	SchedulerNotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_notifications_failed_total",
			Help: "Total failed notification attempts",
		},
		[]string{"reason"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~1024s
		},
		[]string{"job"},
	)

	// Achievements.
	AchievementsAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_awarded_total",
			Help: "Total number of achievements unlocked",
		},
		[]string{"achievement"},
	)

	ActiveAchievementHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_achievement_holders",
			Help: "Current number of users holding each achievement",
		},
		[]string{"achievement"},
	)

	// HTTP.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordXPAwarded records a successful award.
func RecordXPAwarded(action string, amount int) {
	XPAwardsTotal.WithLabelValues(action, "awarded").Inc()
	if amount > 0 {
		XPGrantedTotal.WithLabelValues(action).Add(float64(amount))
	}
}

// RecordXPRejected records a business-rule rejection.
func RecordXPRejected(action, reason string) {
	XPAwardsTotal.WithLabelValues(action, "rejected").Inc()
	XPRejectionsTotal.WithLabelValues(action, reason).Inc()
}

// RecordXPError records an award that failed on the store.
func RecordXPError(action string) {
	XPAwardsTotal.WithLabelValues(action, "error").Inc()
}

// ObserveXPAwardDuration observes how long an award took.
func ObserveXPAwardDuration(seconds float64) {
	XPAwardDurationSeconds.Observe(seconds)
}

// RecordRateLimitDecision records the result of a rate limit check.
func RecordRateLimitDecision(policy string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	RateLimitDecisionsTotal.WithLabelValues(policy, decision).Inc()
}

// RecordClaimToken records a claim token request.
func RecordClaimToken(outcome string) {
	ClaimTokensIssuedTotal.WithLabelValues(outcome).Inc()
}

// RecordPotClaim records a pot claim attempt.
func RecordPotClaim(outcome string) {
	PotClaimsTotal.WithLabelValues(outcome).Inc()
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// RecordSchedulerNotificationSent records a successful notification sent.
func RecordSchedulerNotificationSent() {
	SchedulerNotificationsSentTotal.Inc()
}

// RecordSchedulerNotificationFailed records a failed notification attempt.
func RecordSchedulerNotificationFailed(reason string) {
	SchedulerNotificationsFailedTotal.WithLabelValues(reason).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of a job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordAchievementAwarded records an achievement unlock.
func RecordAchievementAwarded(name string) {
	AchievementsAwardedTotal.WithLabelValues(name).Inc()
}

// SetActiveAchievementHolders sets the number of holders for an achievement.
func SetActiveAchievementHolders(name string, count int) {
	ActiveAchievementHolders.WithLabelValues(name).Set(float64(count))
}

// ObserveHTTPRequest observes the latency of a served request.
func ObserveHTTPRequest(method, route, status string, seconds float64) {
	HTTPRequestDurationSeconds.WithLabelValues(method, route, status).Observe(seconds)
}
