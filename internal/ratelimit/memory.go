package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. Separate server instances do not
// share counts, so the effective limit scales with the number of instances.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewMemoryLimiter creates an empty limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check counts a request for key and reports whether it is within limit.
func (l *MemoryLimiter) Check(key string, limit int, win time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(win)}
		return true
	}

	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, error) {
	return l.Check(key, limit, win), nil
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// Sweep drops every window that has elapsed and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Start sweeps expired windows every interval until Stop is called.
func (l *MemoryLimiter) Start(interval time.Duration) {
	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	stop, done := l.stop, l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop started by Start and waits for it to exit.
func (l *MemoryLimiter) Stop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
