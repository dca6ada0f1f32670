package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/notify"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/xp"
)

const defaultDigestSize = 5

// buildDigest collects the top earners in [from, until) with their usernames and levels.
func (s *Service) buildDigest(ctx context.Context, from, until time.Time) ([]notify.DigestEntry, error) {
	size := s.config.DigestSize
	if size <= 0 {
		size = defaultDigestSize
	}

	totals, err := s.xpRepo.TopTotalsSince(ctx, from, until, size)
	if err != nil {
		return nil, fmt.Errorf("failed to rank earners: %w", err)
	}
	if len(totals) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.UserID)
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	balances, err := s.xpRepo.GetBalances(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}

	return buildDigestEntries(totals, users, balances, s.formula), nil
}

// buildDigestEntries keeps ranking order and drops users that earned nothing or no longer exist.
func buildDigestEntries(
	totals []repository.UserTotal,
	users map[uint]models.User,
	balances map[uint]int64,
	formula xp.Formula,
) []notify.DigestEntry {
	entries := make([]notify.DigestEntry, 0, len(totals))
	for _, t := range totals {
		if t.TotalXP <= 0 {
			continue
		}
		user, ok := users[t.UserID]
		if !ok {
			continue
		}
		entries = append(entries, notify.DigestEntry{
			Username: user.Username,
			XP:       t.TotalXP,
			Level:    xp.Level(balances[t.UserID], formula),
		})
	}
	return entries
}
