// Package api assembles the HTTP routes of the service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aimd54/leafline/internal/api/claims"
	"github.com/aimd54/leafline/internal/api/community"
	"github.com/aimd54/leafline/internal/api/dashboard"
	"github.com/aimd54/leafline/internal/api/middleware"
	"github.com/aimd54/leafline/internal/api/rewards"
	"github.com/aimd54/leafline/internal/ratelimit"
	"github.com/aimd54/leafline/pkg/logger"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds everything the router wires together.
type RouterConfig struct {
	AllowedOrigins []string
	Auth           gin.HandlerFunc
	Limiter        ratelimit.Limiter
	Policies       map[string]ratelimit.Policy
	HealthChecks   map[string]HealthCheck

	Rewards   *rewards.Handler
	Claims    *claims.Handler
	Community *community.Handler
	Dashboard *dashboard.Handler

	Log *logger.Logger
}

// NewRouter builds the gin engine with middleware and all API routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log.Component("api")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLog(log))
	router.Use(middleware.Metrics())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader, "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", healthHandler(cfg.HealthChecks))

	limit := func(name string, key middleware.KeyFunc) gin.HandlerFunc {
		policy, ok := cfg.Policies[name]
		if !ok {
			policy = ratelimit.DefaultPolicies()[name]
		}
		return middleware.RateLimit(policy, cfg.Limiter, key, log)
	}

	v1 := router.Group("/api/v1")

	// Public
	v1.GET("/xp/rules", cfg.Rewards.GetRules)
	v1.GET("/leaderboard", cfg.Dashboard.GetLeaderboard)
	v1.GET("/achievements", cfg.Dashboard.GetCatalog)
	v1.GET("/achievements/:id", cfg.Dashboard.GetAchievement)
	v1.GET("/achievements/:id/holders", cfg.Dashboard.GetHolders)
	v1.GET("/posts", cfg.Community.ListPosts)
	v1.GET("/posts/:id", cfg.Community.GetPost)
	v1.GET("/users/:id/stats", cfg.Dashboard.GetUserStats)
	v1.GET("/users/:id/achievements", cfg.Dashboard.GetUserAchievements)
	v1.POST("/claims/token", limit(ratelimit.PolicyClaimToken, middleware.ByClientIP), cfg.Claims.IssueToken)

	// Authenticated
	authed := v1.Group("")
	authed.Use(cfg.Auth)
	authed.POST("/xp/award", cfg.Rewards.Award)
	authed.GET("/users/me/xp", cfg.Rewards.GetMyXP)
	authed.GET("/users/me/pots", cfg.Claims.ListMine)
	authed.GET("/users/:id/xp/history", cfg.Rewards.GetHistory)
	authed.POST("/claims", limit(ratelimit.PolicyClaimExecute, middleware.ByUser), cfg.Claims.Claim)
	authed.POST("/posts", limit(ratelimit.PolicyPostCreate, middleware.ByUser), cfg.Community.CreatePost)
	authed.POST("/posts/:id/comments", limit(ratelimit.PolicyCommentCreate, middleware.ByUser), cfg.Community.CreateComment)
	authed.POST("/posts/:id/like", cfg.Community.ToggleLike)

	// Admin
	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/xp/adjust", cfg.Rewards.Adjust)

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = "unhealthy: " + err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "healthy"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":     overall,
			"components": components,
			"timestamp":  time.Now().UTC(),
		})
	}
}
