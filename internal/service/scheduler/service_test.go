package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimd54/leafline/internal/config"
	prommetrics "github.com/aimd54/leafline/internal/metrics"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/notify"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

// Mock dependencies for testing
type mockXPRepository struct {
	totals   []repository.UserTotal
	balances map[uint]int64
	err      error

	gotSince, gotUntil time.Time
	gotLimit           int
}

func (m *mockXPRepository) TopTotalsSince(_ context.Context, since, until time.Time, limit int) ([]repository.UserTotal, error) {
	m.gotSince, m.gotUntil, m.gotLimit = since, until, limit
	if m.err != nil {
		return nil, m.err
	}
	return m.totals, nil
}

func (m *mockXPRepository) GetBalances(_ context.Context, _ []uint) (map[uint]int64, error) {
	return m.balances, nil
}

type mockUserRepository struct {
	users map[uint]models.User
}

func (m *mockUserRepository) GetByIDs(_ context.Context, _ []uint) (map[uint]models.User, error) {
	return m.users, nil
}

type mockDigestSender struct {
	calls   int
	day     time.Time
	entries []notify.DigestEntry
	err     error
}

func (m *mockDigestSender) SendDailyDigest(_ context.Context, day time.Time, entries []notify.DigestEntry) error {
	m.calls++
	m.day = day
	m.entries = entries
	return m.err
}

type mockEvaluator struct {
	calls    int
	unlocked int
	err      error
}

func (m *mockEvaluator) EvaluateAll(_ context.Context) (int, error) {
	m.calls++
	return m.unlocked, m.err
}

func newTestService(cfg *config.SchedulerConfig, xpRepo *mockXPRepository, users *mockUserRepository, sender *mockDigestSender, eval *mockEvaluator) *Service {
	s := NewService(cfg, eval, xpRepo, users, sender, xp.FormulaSqrt, logger.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestBuildCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		time    string
		want    string
		wantErr bool
	}{
		{name: "daily at 9am", time: "09:00", want: "0 9 * * *"},
		{name: "daily at 14:30", time: "14:30", want: "30 14 * * *"},
		{name: "midnight", time: "00:00", want: "0 0 * * *"},
		{name: "invalid format no colon", time: "0900", wantErr: true},
		{name: "invalid hour", time: "25:00", wantErr: true},
		{name: "invalid minute", time: "09:60", wantErr: true},
		{name: "non numeric", time: "ab:cd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildCronExpression(tt.time)

			if (err != nil) != tt.wantErr {
				t.Errorf("buildCronExpression() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if got != tt.want {
				t.Errorf("buildCronExpression() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildDigestEntries(t *testing.T) {
	totals := []repository.UserTotal{
		{UserID: 1, TotalXP: 80},
		{UserID: 2, TotalXP: 40},
		{UserID: 3, TotalXP: 30}, // deleted user
		{UserID: 4, TotalXP: -5}, // net negative after an adjustment
	}
	users := map[uint]models.User{
		1: {ID: 1, Username: "alice"},
		2: {ID: 2, Username: "bob"},
		4: {ID: 4, Username: "dave"},
	}
	balances := map[uint]int64{1: 900, 2: 40}

	got := buildDigestEntries(totals, users, balances, xp.FormulaSqrt)

	if len(got) != 2 {
		t.Fatalf("buildDigestEntries() returned %d entries, want 2", len(got))
	}
	if got[0].Username != "alice" || got[0].XP != 80 || got[0].Level != 4 {
		t.Errorf("entry[0] = %+v, want alice with 80 XP at level 4", got[0])
	}
	if got[1].Username != "bob" || got[1].Level != 1 {
		t.Errorf("entry[1] = %+v, want bob at level 1", got[1])
	}
}

func TestPreviousDay(t *testing.T) {
	s := newTestService(&config.SchedulerConfig{Timezone: "America/New_York"}, nil, nil, nil, nil)
	// 02:00 UTC on March 10 is still March 9 in New York.
	s.now = func() time.Time { return time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC) }

	day, from, until, err := s.previousDay()
	if err != nil {
		t.Fatalf("previousDay() error = %v", err)
	}

	if got := day.Format("2006-01-02"); got != "2026-03-08" {
		t.Errorf("day = %s, want 2026-03-08", got)
	}
	// March 8 2026 is the DST switch in New York, so the day is 23 hours long.
	if got := until.Sub(from); got != 23*time.Hour {
		t.Errorf("window = %v, want 23h", got)
	}
	if from.Location() != time.UTC || until.Location() != time.UTC {
		t.Errorf("bounds should be in UTC, got %v and %v", from.Location(), until.Location())
	}
}

func TestRunDailyDigest(t *testing.T) {
	xpRepo := &mockXPRepository{
		totals:   []repository.UserTotal{{UserID: 1, TotalXP: 42}},
		balances: map[uint]int64{1: 142},
	}
	users := &mockUserRepository{users: map[uint]models.User{1: {ID: 1, Username: "alice"}}}
	sender := &mockDigestSender{}
	s := newTestService(&config.SchedulerConfig{Timezone: "UTC", DigestSize: 3}, xpRepo, users, sender, nil)

	before := testutil.ToFloat64(prommetrics.SchedulerNotificationsSentTotal)
	s.runDailyDigest(context.Background())

	if sender.calls != 1 {
		t.Fatalf("SendDailyDigest called %d times, want 1", sender.calls)
	}
	if got := sender.day.Format("2006-01-02"); got != "2026-03-09" {
		t.Errorf("digest day = %s, want 2026-03-09", got)
	}
	if xpRepo.gotLimit != 3 {
		t.Errorf("digest limit = %d, want 3", xpRepo.gotLimit)
	}
	if !xpRepo.gotSince.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) ||
		!xpRepo.gotUntil.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("digest window = [%v, %v)", xpRepo.gotSince, xpRepo.gotUntil)
	}
	if len(sender.entries) != 1 || sender.entries[0].Username != "alice" || sender.entries[0].Level != 2 {
		t.Errorf("entries = %+v", sender.entries)
	}
	if got := testutil.ToFloat64(prommetrics.SchedulerNotificationsSentTotal) - before; got != 1 {
		t.Errorf("notifications sent delta = %v, want 1", got)
	}
}

func TestRunDailyDigest_NothingEarned(t *testing.T) {
	sender := &mockDigestSender{}
	s := newTestService(&config.SchedulerConfig{Timezone: "UTC"}, &mockXPRepository{}, &mockUserRepository{}, sender, nil)

	s.runDailyDigest(context.Background())

	if sender.calls != 0 {
		t.Errorf("SendDailyDigest called %d times, want 0", sender.calls)
	}
}

func TestRunDailyDigest_Failures(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		sender := &mockDigestSender{}
		s := newTestService(&config.SchedulerConfig{Timezone: "UTC"},
			&mockXPRepository{err: errors.New("db down")}, &mockUserRepository{}, sender, nil)

		before := testutil.ToFloat64(prommetrics.SchedulerNotificationsFailedTotal.WithLabelValues("query_error"))
		s.runDailyDigest(context.Background())

		if sender.calls != 0 {
			t.Errorf("SendDailyDigest called %d times, want 0", sender.calls)
		}
		if got := testutil.ToFloat64(prommetrics.SchedulerNotificationsFailedTotal.WithLabelValues("query_error")) - before; got != 1 {
			t.Errorf("query_error delta = %v, want 1", got)
		}
	})

	t.Run("webhook error", func(t *testing.T) {
		xpRepo := &mockXPRepository{totals: []repository.UserTotal{{UserID: 1, TotalXP: 5}}}
		users := &mockUserRepository{users: map[uint]models.User{1: {ID: 1, Username: "alice"}}}
		sender := &mockDigestSender{err: errors.New("503")}
		s := newTestService(&config.SchedulerConfig{Timezone: "UTC"}, xpRepo, users, sender, nil)

		before := testutil.ToFloat64(prommetrics.SchedulerNotificationsFailedTotal.WithLabelValues("webhook_error"))
		s.runDailyDigest(context.Background())

		if got := testutil.ToFloat64(prommetrics.SchedulerNotificationsFailedTotal.WithLabelValues("webhook_error")) - before; got != 1 {
			t.Errorf("webhook_error delta = %v, want 1", got)
		}
	})
}

func TestRunAchievementEvaluation(t *testing.T) {
	eval := &mockEvaluator{unlocked: 3}
	s := newTestService(&config.SchedulerConfig{Timezone: "UTC"}, nil, nil, nil, eval)

	success := prommetrics.SchedulerJobsRunTotal.WithLabelValues(JobAchievementEvaluation, "success")
	before := testutil.ToFloat64(success)
	s.runAchievementEvaluation(context.Background())

	if eval.calls != 1 {
		t.Errorf("EvaluateAll called %d times, want 1", eval.calls)
	}
	if got := testutil.ToFloat64(success) - before; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}

	eval.err = errors.New("boom")
	failed := prommetrics.SchedulerJobsRunTotal.WithLabelValues(JobAchievementEvaluation, "error")
	before = testutil.ToFloat64(failed)
	s.runAchievementEvaluation(context.Background())
	if got := testutil.ToFloat64(failed) - before; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestStartStop(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestService(&config.SchedulerConfig{Enabled: false}, nil, nil, nil, nil)
		if err := s.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if s.cron != nil {
			t.Error("cron should not be created when disabled")
		}
		s.Stop()
	})

	t.Run("registers both jobs", func(t *testing.T) {
		cfg := &config.SchedulerConfig{
			Enabled:                   true,
			AchievementEvaluationTime: "0 3 * * *",
			DigestTime:                "09:00",
			Timezone:                  "Europe/Paris",
		}
		s := newTestService(cfg, &mockXPRepository{}, &mockUserRepository{}, &mockDigestSender{}, &mockEvaluator{})
		if err := s.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer s.Stop()

		if got := len(s.cron.Entries()); got != 2 {
			t.Errorf("registered %d jobs, want 2", got)
		}
	})

	t.Run("invalid digest time", func(t *testing.T) {
		cfg := &config.SchedulerConfig{Enabled: true, DigestTime: "9am", Timezone: "UTC"}
		s := newTestService(cfg, &mockXPRepository{}, &mockUserRepository{}, &mockDigestSender{}, nil)
		if err := s.Start(); err == nil {
			t.Error("Start() should fail on an invalid digest time")
		}
	})

	t.Run("invalid timezone", func(t *testing.T) {
		cfg := &config.SchedulerConfig{Enabled: true, Timezone: "Mars/Olympus"}
		s := newTestService(cfg, nil, nil, nil, nil)
		if err := s.Start(); err == nil {
			t.Error("Start() should fail on an invalid timezone")
		}
	})
}
