// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aimd54/leafline/internal/models"
)

// OpenTestDB opens a private in-memory SQLite database with every table migrated.
//
// The pool is capped at one connection, so transactions from concurrent goroutines run one after
// another. Tests on this database do not exercise PostgreSQL row locking.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(
		&models.User{},
		&models.XPEvent{},
		&models.XPBalance{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.Pot{},
		&models.Post{},
		&models.Comment{},
		&models.PostLike{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}

// CreateUser inserts a user with a unique auth ID derived from the username.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		AuthID:   "auth-" + username,
		Username: username,
		Email:    username + "@example.com",
		Role:     models.RoleUser,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create test user %s: %v", username, err)
	}
	return user
}
