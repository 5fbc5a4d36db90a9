package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/model"
)

// Init opens the database connection configured by cfg.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Migrate creates or updates the schema. On postgres it also installs the
// storage-level guards on the counters and booking intervals.
func Migrate(db *gorm.DB, cfg *config.DatabaseConfig) error {
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.ParkingLocation{},
		&model.Occupancy{},
		&model.Booking{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			return err
		}
		if cfg.EnableRangeIndex {
			log.Println("Range index is enabled, applying btree_gist DDL...")
			if err := applyRangeIndexDDL(db); err != nil {
				log.Printf("Warning: failed to apply range index DDL: %v. Continuing without it.", err)
			}
		}
	}

	log.Println("Database initialization complete.")
	return nil
}

// addConstraint wraps an ALTER TABLE so that re-running migrations is a no-op.
func addConstraint(table, name, check string) string {
	return fmt.Sprintf(`DO $$ BEGIN
  ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s);
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;`, table, name, check)
}

func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		addConstraint("occupancies", "occupancies_counters_non_negative", "available >= 0 AND occupied >= 0 AND reserved >= 0"),
		addConstraint("parking_locations", "parking_locations_capacity_positive", "total_capacity > 0"),
		addConstraint("parking_locations", "parking_locations_rate_non_negative", "hourly_rate >= 0"),
		addConstraint("bookings", "bookings_interval_valid", "end_time > start_time"),
		addConstraint("bookings", "bookings_status_valid", "status IN ('pending','active','completed','cancelled')"),
	}
	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

func applyRangeIndexDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",
		// Half-open ranges match the overlap predicate used for admission.
		"CREATE INDEX IF NOT EXISTS idx_booking_period ON bookings " +
			"USING GIST (parking_id, tstzrange(start_time, end_time, '[)')) " +
			"WHERE status IN ('pending','active');",
	}
	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
