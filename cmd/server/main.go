// Command server runs the leafline API, background jobs and metrics exporter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aimd54/leafline/internal/api"
	"github.com/aimd54/leafline/internal/api/claims"
	"github.com/aimd54/leafline/internal/api/community"
	"github.com/aimd54/leafline/internal/api/dashboard"
	"github.com/aimd54/leafline/internal/api/middleware"
	"github.com/aimd54/leafline/internal/api/rewards"
	"github.com/aimd54/leafline/internal/cache"
	"github.com/aimd54/leafline/internal/config"
	"github.com/aimd54/leafline/internal/notify"
	"github.com/aimd54/leafline/internal/ratelimit"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/achievements"
	"github.com/aimd54/leafline/internal/service/claim"
	"github.com/aimd54/leafline/internal/service/feed"
	"github.com/aimd54/leafline/internal/service/leaderboard"
	"github.com/aimd54/leafline/internal/service/scheduler"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/pkg/logger"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", ""), "path to the configuration file (searched in ., ./config and /etc/leafline when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Graceful shutdown complete")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	if cfg.Database.Postgres.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to auto-migrate: %w", err)
		}
	} else if err := repository.RunMigrations(cfg.Database.Postgres.URL(), log); err != nil {
		return err
	}

	var redisCache *cache.RedisCache
	if cfg.Database.Redis.Host != "" {
		redisCache, err = cache.NewRedisCache(&cfg.Database.Redis, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisCache.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis")
			}
		}()
	}

	rules := xp.DefaultRules()
	if cfg.XP.RulesFile != "" {
		if rules, err = xp.LoadRules(cfg.XP.RulesFile); err != nil {
			return err
		}
		log.Info().Str("path", cfg.XP.RulesFile).Msg("Loaded XP rule table")
	}

	// Repositories
	xpRepo := repository.NewXPRepository(db)
	userRepo := repository.NewUserRepository(db)
	achievementRepo := repository.NewAchievementRepository(db)
	potRepo := repository.NewPotRepository(db)
	feedRepo := repository.NewFeedRepository(db)

	// Services
	notifier := notify.NewClient(&cfg.Notifications, log)

	xpSvc, err := xp.NewService(xpRepo, rules, &cfg.XP, log)
	if err != nil {
		return err
	}
	formula := xpSvc.Formula()

	achSvc := achievements.NewService(achievementRepo, xpRepo, userRepo, notifier, formula, log)
	if _, err := achSvc.SeedCatalog(ctx); err != nil {
		return err
	}

	var lbCache cache.Cache
	if redisCache != nil {
		lbCache = redisCache
	}
	lbSvc := leaderboard.NewService(xpRepo, achievementRepo, userRepo, lbCache,
		time.Duration(cfg.Leaderboard.CacheTTL)*time.Second, formula, log)

	xpSvc.OnAward(achSvc.OnXPAwarded)
	xpSvc.OnAward(lbSvc.OnXPAwarded)

	claimSvc := claim.NewService(potRepo, xpSvc, &cfg.Claim, log)
	feedSvc := feed.NewService(feedRepo, xpSvc, log)

	limiter, stopLimiter, err := newLimiter(cfg, redisCache, log)
	if err != nil {
		return err
	}
	defer stopLimiter()

	sched := scheduler.NewService(&cfg.Scheduler, achSvc, xpRepo, userRepo, notifier, formula, log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// HTTP
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	healthChecks := map[string]api.HealthCheck{
		"database": func(context.Context) error { return db.Health() },
	}
	if redisCache != nil {
		healthChecks["redis"] = redisCache.Health
	}

	auth := middleware.NewAuthenticator(&cfg.Auth, userRepo, log)
	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth:           auth.RequireAuth(),
		Limiter:        limiter,
		Policies:       ratelimit.PoliciesFromConfig(&cfg.RateLimit),
		HealthChecks:   healthChecks,
		Rewards:        rewards.NewHandler(xpSvc, userRepo, log),
		Claims:         claims.NewHandler(claimSvc, log),
		Community:      community.NewHandler(feedSvc, log),
		Dashboard:      dashboard.NewHandler(achSvc, lbSvc, log),
		Log:            log,
	})

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Metrics.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Prometheus.Path, promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Prometheus.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newLimiter(cfg *config.Config, redisCache *cache.RedisCache, log *logger.Logger) (ratelimit.Limiter, func(), error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		if redisCache == nil {
			return nil, nil, errors.New("rate_limit.backend is redis but no redis host is configured")
		}
		log.Info().Msg("Using Redis rate limiter")
		return ratelimit.NewRedisLimiter(redisCache.Client(), "ratelimit:"), func() {}, nil
	default:
		limiter := ratelimit.NewMemoryLimiter()
		if cfg.RateLimit.SweepInterval > 0 {
			limiter.Start(time.Duration(cfg.RateLimit.SweepInterval) * time.Second)
		}
		log.Info().Msg("Using in-memory rate limiter")
		return limiter, limiter.Stop, nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
