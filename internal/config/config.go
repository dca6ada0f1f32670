// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Database      DatabaseConfig      `mapstructure:"database"`
	XP            XPConfig            `mapstructure:"xp"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Claim         ClaimConfig         `mapstructure:"claim"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Leaderboard   LeaderboardConfig   `mapstructure:"leaderboard"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Environment     string   `mapstructure:"environment"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // seconds
}

// AuthConfig contains settings for validating access tokens issued by the hosted auth provider.
type AuthConfig struct {
	JWTSecret  string   `mapstructure:"jwt_secret"`
	Issuer     string   `mapstructure:"issuer"`
	AdminRoles []string `mapstructure:"admin_roles"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"` // use GORM AutoMigrate instead of SQL migrations
}

// DSN returns the libpq keyword/value connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// URL form used by golang-migrate.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// XPConfig contains experience point awarding settings.
type XPConfig struct {
	DailyTotalCap           int    `mapstructure:"daily_total_cap"`
	Timezone                string `mapstructure:"timezone"`      // day boundary for caps
	LevelFormula            string `mapstructure:"level_formula"` // "sqrt" or "linear"
	ExemptAdminFromTotalCap bool   `mapstructure:"exempt_admin_from_total_cap"`
	RulesFile               string `mapstructure:"rules_file"` // optional YAML override of the rule table
}

// Location returns the time zone used to compute the start of the XP day.
func (c *XPConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// RateLimitConfig contains request throttling settings.
type RateLimitConfig struct {
	Backend       string                  `mapstructure:"backend"`        // "memory" or "redis"
	SweepInterval int                     `mapstructure:"sweep_interval"` // seconds, memory backend only
	Policies      map[string]PolicyConfig `mapstructure:"policies"`
}

// PolicyConfig overrides the limit and window of a named rate limit policy.
type PolicyConfig struct {
	Limit  int `mapstructure:"limit"`
	Window int `mapstructure:"window"` // seconds
}

// ClaimConfig contains pot claim token settings.
type ClaimConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
	TokenTTL    int    `mapstructure:"token_ttl"` // seconds
	Issuer      string `mapstructure:"issuer"`
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	Enabled                   bool   `mapstructure:"enabled"`
	AchievementEvaluationTime string `mapstructure:"achievement_evaluation_time"` // cron expression
	DigestTime                string `mapstructure:"digest_time"`                 // HH:MM
	DigestSize                int    `mapstructure:"digest_size"`
	Timezone                  string `mapstructure:"timezone"`
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// NotificationsConfig contains incoming-webhook notification settings.
type NotificationsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
	Enabled    bool   `mapstructure:"enabled"`
}

// LeaderboardConfig contains leaderboard cache settings.
type LeaderboardConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // seconds, 0 disables caching
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", 15)

	v.SetDefault("auth.admin_roles", []string{"admin"})

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("xp.daily_total_cap", 100)
	v.SetDefault("xp.timezone", "UTC")
	v.SetDefault("xp.level_formula", "sqrt")

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.sweep_interval", 60)

	v.SetDefault("claim.token_ttl", 600)
	v.SetDefault("claim.issuer", "leafline")

	v.SetDefault("scheduler.achievement_evaluation_time", "0 3 * * *")
	v.SetDefault("scheduler.digest_time", "09:00")
	v.SetDefault("scheduler.digest_size", 5)
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("notifications.username", "leafline")

	v.SetDefault("leaderboard.cache_ttl", 60)

	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/leafline/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// Auth configuration
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	_ = v.BindEnv("auth.issuer", "AUTH_ISSUER")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.postgres.auto_migrate", "POSTGRES_AUTO_MIGRATE")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// XP configuration
	_ = v.BindEnv("xp.daily_total_cap", "XP_DAILY_TOTAL_CAP")
	_ = v.BindEnv("xp.timezone", "XP_TIMEZONE")
	_ = v.BindEnv("xp.level_formula", "XP_LEVEL_FORMULA")
	_ = v.BindEnv("xp.exempt_admin_from_total_cap", "XP_EXEMPT_ADMIN_FROM_TOTAL_CAP")
	_ = v.BindEnv("xp.rules_file", "XP_RULES_FILE")

	// Rate limiting
	_ = v.BindEnv("rate_limit.backend", "RATE_LIMIT_BACKEND")
	_ = v.BindEnv("rate_limit.sweep_interval", "RATE_LIMIT_SWEEP_INTERVAL")

	// Claim tokens
	_ = v.BindEnv("claim.token_secret", "CLAIM_TOKEN_SECRET", "JWT_SECRET")
	_ = v.BindEnv("claim.token_ttl", "CLAIM_TOKEN_TTL")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.achievement_evaluation_time", "SCHEDULER_ACHIEVEMENT_EVALUATION_TIME")
	_ = v.BindEnv("scheduler.digest_time", "SCHEDULER_DIGEST_TIME")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	// Notifications
	_ = v.BindEnv("notifications.webhook_url", "NOTIFICATIONS_WEBHOOK_URL")
	_ = v.BindEnv("notifications.channel", "NOTIFICATIONS_CHANNEL")
	_ = v.BindEnv("notifications.enabled", "NOTIFICATIONS_ENABLED")

	// Metrics
	_ = v.BindEnv("metrics.prometheus.enabled", "PROMETHEUS_ENABLED")
	_ = v.BindEnv("metrics.prometheus.port", "PROMETHEUS_PORT")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Claim.TokenSecret == "" {
		return fmt.Errorf("claim.token_secret is required")
	}
	if c.Claim.TokenTTL <= 0 {
		return fmt.Errorf("claim.token_ttl must be positive")
	}
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.XP.DailyTotalCap <= 0 {
		return fmt.Errorf("xp.daily_total_cap must be positive")
	}
	if c.XP.LevelFormula != "sqrt" && c.XP.LevelFormula != "linear" {
		return fmt.Errorf("xp.level_formula must be sqrt or linear, got %q", c.XP.LevelFormula)
	}
	if _, err := c.XP.Location(); err != nil {
		return fmt.Errorf("xp.timezone: %w", err)
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Database.Redis.Host == "" {
			return fmt.Errorf("database.redis.host is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}
	for name, p := range c.RateLimit.Policies {
		if p.Limit <= 0 || p.Window <= 0 {
			return fmt.Errorf("rate_limit.policies.%s: limit and window must be positive", name)
		}
	}
	if c.Notifications.Enabled && c.Notifications.WebhookURL == "" {
		return fmt.Errorf("notifications.webhook_url is required when notifications are enabled")
	}
	return nil
}
