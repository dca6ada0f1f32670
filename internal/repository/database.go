// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/leafline/internal/config"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/pkg/logger"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection.
func NewDB(cfg *config.PostgresConfig, log *logger.Logger) (*DB, error) {
	gormLogLevel := gormlogger.Warn
	if log.IsDebug() {
		gormLogLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL")

	return &DB{db}, nil
}

// AllModels lists every persisted model, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.XPEvent{},
		&models.XPBalance{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.Pot{},
		&models.Post{},
		&models.Comment{},
		&models.PostLike{},
	}
}

// AutoMigrate runs GORM schema migrations for all models.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(AllModels()...)
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
