package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/testutil"
)

var errRejected = errors.New("rejected")

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	return &DB{testutil.OpenTestDB(t)}
}

func fixedEvent(action models.XPAction, amount int, at time.Time) DecideFunc {
	return func(today []models.XPEvent) (*models.XPEvent, error) {
		return &models.XPEvent{Action: action, Amount: amount, CreatedAt: at}, nil
	}
}

func TestXPRepository_Award_CreatesBalanceAndEvent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := testutil.CreateUser(t, db.DB, "alice")
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	event, total, err := repo.Award(ctx, user.ID, since, fixedEvent(models.XPActionPostCreate, 3, now))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.NotZero(t, event.ID)
	assert.Equal(t, user.ID, event.UserID)

	_, total, err = repo.Award(ctx, user.ID, since, fixedEvent(models.XPActionPostCreate, 3, now.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	balance, err := repo.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), balance)
}

func TestXPRepository_Award_PassesTodaysEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := testutil.CreateUser(t, db.DB, "bob")
	ctx := context.Background()
	since := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	// Yesterday's event must not be visible to today's decision.
	_, _, err := repo.Award(ctx, user.ID, since.Add(-24*time.Hour), fixedEvent(models.XPActionCommentCreate, 1, since.Add(-time.Hour)))
	require.NoError(t, err)
	_, _, err = repo.Award(ctx, user.ID, since, fixedEvent(models.XPActionCommentCreate, 1, since.Add(time.Hour)))
	require.NoError(t, err)

	var seen []models.XPEvent
	_, _, err = repo.Award(ctx, user.ID, since, func(today []models.XPEvent) (*models.XPEvent, error) {
		seen = today
		return nil, errRejected
	})
	require.ErrorIs(t, err, errRejected)
	require.Len(t, seen, 1)
	assert.Equal(t, since.Add(time.Hour), seen[0].CreatedAt.UTC())
}

func TestXPRepository_Award_RejectionWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := testutil.CreateUser(t, db.DB, "carol")
	ctx := context.Background()
	since := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

	_, _, err := repo.Award(ctx, user.ID, since, fixedEvent(models.XPActionArticleRead, 2, since.Add(time.Hour)))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err = repo.Award(ctx, user.ID, since, func([]models.XPEvent) (*models.XPEvent, error) {
			return nil, errRejected
		})
		assert.ErrorIs(t, err, errRejected)
	}

	balance, err := repo.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)

	events, err := repo.EventsSince(ctx, user.ID, since)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestXPRepository_Award_ConcurrentCapHolds(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := testutil.CreateUser(t, db.DB, "dave")
	ctx := context.Background()
	since := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	const (
		attempts = 12
		capacity = 4
	)

	decide := func(today []models.XPEvent) (*models.XPEvent, error) {
		if len(today) >= capacity {
			return nil, errRejected
		}
		return &models.XPEvent{Action: models.XPActionPostCreate, Amount: 3, CreatedAt: since.Add(time.Hour)}, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Award(ctx, user.ID, since, decide)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, errRejected):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, success)
	assert.Equal(t, attempts-capacity, rejected)

	balance, err := repo.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(capacity*3), balance)
}

func TestXPRepository_GetBalance_UnknownUser(t *testing.T) {
	repo := NewXPRepository(setupTestDB(t))
	balance, err := repo.GetBalance(context.Background(), 999)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestXPRepository_HistoryAndCounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	user := testutil.CreateUser(t, db.DB, "erin")
	ctx := context.Background()
	since := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)

	actions := []models.XPAction{
		models.XPActionPostCreate,
		models.XPActionCommentCreate,
		models.XPActionCommentCreate,
		models.XPActionGameBlockPlay,
	}
	for i, a := range actions {
		_, _, err := repo.Award(ctx, user.ID, since, fixedEvent(a, 1, since.Add(time.Duration(i+1)*time.Minute)))
		require.NoError(t, err)
	}

	history, err := repo.History(ctx, user.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.XPActionGameBlockPlay, history[0].Action)

	counts, err := repo.CountByAction(ctx, user.ID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.XPActionCommentCreate])
	assert.Equal(t, int64(1), counts[models.XPActionPostCreate])
	assert.Zero(t, counts[models.XPActionPotLink])
}

func TestXPRepository_Rankings(t *testing.T) {
	db := setupTestDB(t)
	repo := NewXPRepository(db)
	ctx := context.Background()
	day := time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC)

	alice := testutil.CreateUser(t, db.DB, "alice")
	bob := testutil.CreateUser(t, db.DB, "bob")

	// Alice earned more overall, Bob earned more today.
	_, _, err := repo.Award(ctx, alice.ID, day.Add(-48*time.Hour), fixedEvent(models.XPActionPotLink, 25, day.Add(-24*time.Hour)))
	require.NoError(t, err)
	_, _, err = repo.Award(ctx, alice.ID, day, fixedEvent(models.XPActionPostCreate, 3, day.Add(time.Hour)))
	require.NoError(t, err)
	_, _, err = repo.Award(ctx, bob.ID, day, fixedEvent(models.XPActionPostCreate, 3, day.Add(time.Hour)))
	require.NoError(t, err)
	_, _, err = repo.Award(ctx, bob.ID, day, fixedEvent(models.XPActionArticleRead, 2, day.Add(2*time.Hour)))
	require.NoError(t, err)

	today, err := repo.TopTotalsSince(ctx, day, day.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.Equal(t, bob.ID, today[0].UserID)
	assert.Equal(t, int64(5), today[0].TotalXP)

	allTime, err := repo.TopBalances(ctx, 1)
	require.NoError(t, err)
	require.Len(t, allTime, 1)
	assert.Equal(t, alice.ID, allTime[0].UserID)
	assert.Equal(t, int64(28), allTime[0].TotalXP)

	balances, err := repo.GetBalances(ctx, []uint{alice.ID, bob.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(5), balances[bob.ID])
}
