package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/leafline/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter()
	l.now = clock.Now
	return l, clock
}

func TestMemoryLimiter_FiveThenDenyThenReset(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 1; i <= 5; i++ {
		assert.True(t, l.Check("k", 5, time.Minute), "call %d", i)
	}
	assert.False(t, l.Check("k", 5, time.Minute), "call 6")

	require.NoError(t, l.Reset(context.Background(), "k"))
	assert.True(t, l.Check("k", 5, time.Minute), "call 7 after reset")
}

func TestMemoryLimiter_KeyIsolation(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 3; i++ {
		l.Check("a", 3, time.Minute)
	}
	assert.False(t, l.Check("a", 3, time.Minute))
	assert.True(t, l.Check("b", 3, time.Minute))
}

func TestMemoryLimiter_WindowExpiry(t *testing.T) {
	l, clock := newTestLimiter()

	assert.True(t, l.Check("k", 1, time.Minute))
	assert.False(t, l.Check("k", 1, time.Minute))

	clock.Advance(59 * time.Second)
	assert.False(t, l.Check("k", 1, time.Minute))

	// The window is fixed from the first request; denied calls do not extend it.
	clock.Advance(time.Second)
	assert.True(t, l.Check("k", 1, time.Minute))
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter()

	l.Check("short", 5, time.Second)
	l.Check("long", 5, time.Hour)
	assert.Equal(t, 2, l.Len())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestMemoryLimiter_StartStop(t *testing.T) {
	l, clock := newTestLimiter()
	l.Check("k", 1, time.Millisecond)
	clock.Advance(time.Second)

	l.Start(5 * time.Millisecond)
	l.Start(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	l.Stop()
	l.Stop()
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared", 10, time.Minute) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestPoliciesFromConfig(t *testing.T) {
	policies := DefaultPolicies()
	assert.Equal(t, 5, policies[PolicyClaimToken].Limit)
	assert.Equal(t, time.Minute, policies[PolicyClaimToken].Window)
	assert.Equal(t, 3, policies[PolicyClaimExecute].Limit)
	assert.Equal(t, 10, policies[PolicyPostCreate].Limit)
	assert.Equal(t, 30, policies[PolicyCommentCreate].Limit)
	assert.Equal(t, time.Hour, policies[PolicyCommentCreate].Window)

	overridden := PoliciesFromConfig(&config.RateLimitConfig{
		Policies: map[string]config.PolicyConfig{
			PolicyPostCreate: {Limit: 2, Window: 60},
		},
	})
	assert.Equal(t, 2, overridden[PolicyPostCreate].Limit)
	assert.Equal(t, time.Minute, overridden[PolicyPostCreate].Window)
	assert.Equal(t, 5, overridden[PolicyClaimToken].Limit)
}

func TestPolicy_Allow(t *testing.T) {
	l, _ := newTestLimiter()
	p := Policy{Name: "test", Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := p.Allow(ctx, l, "user:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := p.Allow(ctx, l, "user:1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Allow(ctx, l, "user:2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fmt.Sprintf("%s:%s", "test", "user:1"), p.Key("user:1"))
}
