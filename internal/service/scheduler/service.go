// Package scheduler runs the periodic achievement evaluation and daily digest jobs.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/leafline/internal/config"
	prommetrics "github.com/aimd54/leafline/internal/metrics"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/notify"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// Job names used in logs and metrics.
const (
	JobAchievementEvaluation = "achievement_evaluation"
	JobDailyDigest           = "daily_digest"
)

// AchievementEvaluator evaluates achievements for every user.
type AchievementEvaluator interface {
	EvaluateAll(ctx context.Context) (int, error)
}

// XPRepository interface for the ranking queries behind the digest.
type XPRepository interface {
	TopTotalsSince(ctx context.Context, since, until time.Time, limit int) ([]repository.UserTotal, error)
	GetBalances(ctx context.Context, userIDs []uint) (map[uint]int64, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByIDs(ctx context.Context, ids []uint) (map[uint]models.User, error)
}

// DigestSender delivers the daily digest.
type DigestSender interface {
	SendDailyDigest(ctx context.Context, day time.Time, entries []notify.DigestEntry) error
}

// Service schedules background jobs.
type Service struct {
	config       *config.SchedulerConfig
	achievements AchievementEvaluator
	xpRepo       XPRepository
	userRepo     UserRepository
	digest       DigestSender
	formula      xp.Formula
	now          func() time.Time
	log          *logger.Logger
	cron         *cron.Cron
}

// NewService creates a new scheduler service. achievements and digest may be nil to skip their jobs.
func NewService(
	cfg *config.SchedulerConfig,
	achievements AchievementEvaluator,
	xpRepo XPRepository,
	userRepo UserRepository,
	digest DigestSender,
	formula xp.Formula,
	log *logger.Logger,
) *Service {
	return &Service{
		config:       cfg,
		achievements: achievements,
		xpRepo:       xpRepo,
		userRepo:     userRepo,
		digest:       digest,
		formula:      formula,
		now:          time.Now,
		log:          log.Component("scheduler"),
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	if s.achievements != nil && s.config.AchievementEvaluationTime != "" {
		if _, err := s.cron.AddFunc(s.config.AchievementEvaluationTime, func() {
			s.runAchievementEvaluation(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register achievement evaluation job: %w", err)
		}
		s.log.Info().
			Str("schedule", s.config.AchievementEvaluationTime).
			Msg("Achievement evaluation job registered")
	}

	if s.digest != nil && s.config.DigestTime != "" {
		cronExpr, err := buildCronExpression(s.config.DigestTime)
		if err != nil {
			return fmt.Errorf("failed to build digest cron expression: %w", err)
		}
		if _, err := s.cron.AddFunc(cronExpr, func() {
			s.runDailyDigest(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register daily digest job: %w", err)
		}
		s.log.Info().
			Str("schedule", cronExpr).
			Int("size", s.config.DigestSize).
			Msg("Daily digest job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Int("jobs", len(s.cron.Entries())).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildCronExpression turns an "HH:MM" time of day into a daily cron expression.
func buildCronExpression(at string) (string, error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", at)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// runAchievementEvaluation executes the achievement evaluation job.
func (s *Service) runAchievementEvaluation(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(JobAchievementEvaluation, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(JobAchievementEvaluation)
	}()

	s.log.Info().Msg("Running achievement evaluation job")

	unlocked, err := s.achievements.EvaluateAll(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Achievement evaluation job failed")
		prommetrics.RecordSchedulerJobRun(JobAchievementEvaluation, "error")
		return
	}

	prommetrics.RecordSchedulerJobRun(JobAchievementEvaluation, "success")
	s.log.Info().
		Int("achievements_unlocked", unlocked).
		Dur("duration", time.Since(start)).
		Msg("Achievement evaluation job completed successfully")
}

// runDailyDigest posts yesterday's top earners.
func (s *Service) runDailyDigest(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(JobDailyDigest, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(JobDailyDigest)
	}()

	day, from, until, err := s.previousDay()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute digest window")
		prommetrics.RecordSchedulerJobRun(JobDailyDigest, "error")
		return
	}

	s.log.Info().Str("day", day.Format("2006-01-02")).Msg("Running daily digest job")

	entries, err := s.buildDigest(ctx, from, until)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to build daily digest")
		prommetrics.RecordSchedulerJobRun(JobDailyDigest, "error")
		prommetrics.RecordSchedulerNotificationFailed("query_error")
		return
	}

	if len(entries) == 0 {
		s.log.Debug().Msg("No XP earned yesterday, skipping digest")
		prommetrics.RecordSchedulerJobRun(JobDailyDigest, "success")
		return
	}

	if err := s.digest.SendDailyDigest(ctx, day, entries); err != nil {
		s.log.Error().Err(err).Msg("Failed to send daily digest")
		prommetrics.RecordSchedulerJobRun(JobDailyDigest, "error")
		prommetrics.RecordSchedulerNotificationFailed("webhook_error")
		return
	}

	prommetrics.RecordSchedulerJobRun(JobDailyDigest, "success")
	prommetrics.RecordSchedulerNotificationSent()

	s.log.Info().
		Int("entries", len(entries)).
		Dur("total_duration", time.Since(start)).
		Msg("Successfully sent daily digest")
}

// previousDay returns the calendar day before now in the scheduler timezone and its UTC bounds.
func (s *Service) previousDay() (day, from, until time.Time, err error) {
	loc, err := s.config.GetLocation()
	if err != nil {
		return day, from, until, err
	}

	now := s.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	day = today.AddDate(0, 0, -1)
	return day, day.UTC(), today.UTC(), nil
}
