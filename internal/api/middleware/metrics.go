package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	prommetrics "github.com/aimd54/leafline/internal/metrics"
	"github.com/aimd54/leafline/pkg/logger"
)

// Metrics records request latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		prommetrics.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// RequestLog logs every request once it completes.
func RequestLog(log *logger.Logger) gin.HandlerFunc {
	httpLog := log.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := httpLog.Debug()
		if status >= 500 {
			event = httpLog.Error()
		}
		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
