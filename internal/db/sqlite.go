package db

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nexusmods/modlink/internal/db/models"
)

// Open initialises the SQLite database connection and runs migrations.
func Open(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := gdb.AutoMigrate(&models.LinkedAccount{}, &models.ModSubscription{}); err != nil {
		return nil, err
	}

	return gdb, nil
}
