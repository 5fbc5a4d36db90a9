// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/db"
	"parking-booking-backend/internal/model"
)

// SQLiteDSN returns a file-backed DSN in dir. Transactions begin IMMEDIATE so
// concurrent writers queue on the database lock instead of deadlocking.
func SQLiteDSN(dir string) string {
	return "file:" + filepath.Join(dir, "parking.db") +
		"?_txlock=immediate&_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL"
}

// NewSQLiteDB opens a migrated SQLite database that lives for the duration of t.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(SQLiteDSN(t.TempDir())), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB, &config.DatabaseConfig{Driver: "sqlite"}))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gormDB
}

// SeedLocation inserts an active location with the given capacity and an
// hourly rate of 10.00, plus its occupancy row.
func SeedLocation(t *testing.T, gormDB *gorm.DB, capacity int) *model.ParkingLocation {
	t.Helper()

	loc := &model.ParkingLocation{
		Name:          "Central Garage",
		Address:       "1 Main Street",
		Latitude:      52.52,
		Longitude:     13.405,
		OwnerID:       "owner-1",
		TotalCapacity: capacity,
		HourlyRate:    decimal.RequireFromString("10.00"),
		IsActive:      true,
	}
	err := gormDB.WithContext(context.Background()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(loc).Error; err != nil {
			return err
		}
		return tx.Create(&model.Occupancy{ParkingID: loc.ID, Available: capacity}).Error
	})
	require.NoError(t, err)
	return loc
}
