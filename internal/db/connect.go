// Package db opens and migrates the local transcript archive database.
package db

import (
	"fmt"

	"github.com/zulandar/parley/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a GORM connection to the SQLite archive at path. Use
// ":memory:" for an ephemeral database in tests.
func Connect(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", path, err)
	}
	return gdb, nil
}

// AllModels returns the archive's GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.SessionRecord{},
		&models.TranscriptEntry{},
	}
}

// AutoMigrate creates or updates the archive tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Open connects to the archive at path and runs migrations.
func Open(path string) (*gorm.DB, error) {
	gdb, err := Connect(path)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}
