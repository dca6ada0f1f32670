// Package ratelimit implements fixed-window request counting keyed by arbitrary strings.
package ratelimit

import (
	"context"
	"time"
)

// Limiter admits or refuses a request for key. At most limit requests are admitted per window,
// and the window starts with the first request for the key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}
