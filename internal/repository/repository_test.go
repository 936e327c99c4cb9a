package repository

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openBareDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openBareDB(t)
	if err := db.AutoMigrate(
		&model.User{},
		&model.PushToken{},
		&model.PushTicket{},
		&model.NotificationRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
