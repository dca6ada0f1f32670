package claim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/leafline/internal/config"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/internal/testutil"
	"github.com/aimd54/leafline/pkg/logger"
)

type fixture struct {
	svc    *Service
	xp     *xp.Service
	pots   *repository.PotRepository
	ledger *repository.XPRepository
	alice  *models.User
	bob    *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()

	gdb := testutil.OpenTestDB(t)
	db := &repository.DB{DB: gdb}
	pots := repository.NewPotRepository(db)
	ledger := repository.NewXPRepository(db)

	xpSvc, err := xp.NewService(ledger, xp.DefaultRules(), &config.XPConfig{DailyTotalCap: 100, LevelFormula: "sqrt"}, logger.NewNop())
	require.NoError(t, err)

	svc := NewService(pots, xpSvc, &config.ClaimConfig{TokenSecret: "claim-secret", TokenTTL: 600}, logger.NewNop())

	require.NoError(t, pots.Create(context.Background(), &models.Pot{Code: "TEST001", ProductName: "Glazed pot"}))

	return &fixture{
		svc:    svc,
		xp:     xpSvc,
		pots:   pots,
		ledger: ledger,
		alice:  testutil.CreateUser(t, gdb, "alice"),
		bob:    testutil.CreateUser(t, gdb, "bob"),
	}
}

func TestService_ClaimFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	token, expiresAt, err := f.svc.IssueToken(ctx, "TEST001")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	res, err := f.svc.Claim(ctx, f.alice.ID, token)
	require.NoError(t, err)
	require.NotNil(t, res.Pot.ClaimedBy)
	assert.Equal(t, f.alice.ID, *res.Pot.ClaimedBy)
	assert.True(t, res.XP.Success)
	assert.Equal(t, 25, res.XP.XPAwarded)
	require.NotNil(t, res.XP.Event.ReferenceID)
	assert.Equal(t, "TEST001", *res.XP.Event.ReferenceID)

	balance, err := f.ledger.GetBalance(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	owned, err := f.svc.Owned(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestService_ClaimTwice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	token, _, err := f.svc.IssueToken(ctx, "TEST001")
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, f.alice.ID, token)
	require.NoError(t, err)

	// Replaying the token cannot steal the pot.
	_, err = f.svc.Claim(ctx, f.bob.ID, token)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	_, _, err = f.svc.IssueToken(ctx, "TEST001")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	balance, err := f.ledger.GetBalance(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestService_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.IssueToken(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrPotNotFound)

	_, err = f.svc.Claim(ctx, f.alice.ID, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A validly signed token for a pot that was never registered.
	orphan, _, err := f.svc.tokens.Generate("GHOST")
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, f.alice.ID, orphan)
	assert.ErrorIs(t, err, ErrPotNotFound)
}

func TestService_ClaimKeepsPotWhenXPRefused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, step := range []struct {
		action models.XPAction
		n      int
	}{{models.XPActionPotLink, 3}, {models.XPActionGameBlockPlay, 20}} {
		for i := 0; i < step.n; i++ {
			res, err := f.xp.Award(ctx, f.alice.ID, xp.Request{Action: step.action})
			require.NoError(t, err)
			require.True(t, res.Success)
		}
	}

	token, _, err := f.svc.IssueToken(ctx, "TEST001")
	require.NoError(t, err)

	res, err := f.svc.Claim(ctx, f.alice.ID, token)
	require.NoError(t, err)
	assert.False(t, res.XP.Success)
	assert.Equal(t, xp.ReasonDailyTotalCapReached, res.XP.Reason)
	require.NotNil(t, res.Pot.ClaimedBy)
	assert.Equal(t, f.alice.ID, *res.Pot.ClaimedBy)

	balance, err := f.ledger.GetBalance(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(95), balance)

	// The pot is gone for good; a later claim attempt cannot collect the XP.
	_, err = f.svc.Claim(ctx, f.alice.ID, token)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}
