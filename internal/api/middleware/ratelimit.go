package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/leafline/internal/ratelimit"
	"github.com/aimd54/leafline/pkg/logger"
)

// KeyFunc derives the rate limit subject from a request.
type KeyFunc func(c *gin.Context) string

// ByClientIP keys requests by client address.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByUser keys requests by the authenticated user, falling back to the client address.
func ByUser(c *gin.Context) string {
	if user := CurrentUser(c); user != nil {
		return "user:" + strconv.FormatUint(uint64(user.ID), 10)
	}
	return ByClientIP(c)
}

// RateLimit rejects requests over the policy with 429. Limiter failures let the request through.
func RateLimit(policy ratelimit.Policy, limiter ratelimit.Limiter, key KeyFunc, log *logger.Logger) gin.HandlerFunc {
	limitLog := log.Component("ratelimit")
	retryAfter := strconv.Itoa(int(policy.Window.Seconds()))

	return func(c *gin.Context) {
		subject := key(c)
		allowed, err := policy.Allow(c.Request.Context(), limiter, subject)
		if err != nil {
			limitLog.Error().Err(err).Str("policy", policy.Name).Msg("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			limitLog.Debug().Str("policy", policy.Name).Str("subject", subject).Msg("Rate limit exceeded")
			c.Header("Retry-After", retryAfter)
			abort(c, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}
		c.Next()
	}
}
