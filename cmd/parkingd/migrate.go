package main

import (
	"github.com/spf13/cobra"

	"parking-booking-backend/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := db.Init(&cfg.Database)
			if err != nil {
				return err
			}
			if sqlDB, err := gormDB.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := db.Migrate(gormDB, &cfg.Database); err != nil {
				return err
			}
			logger.Println("database migrated")
			return nil
		},
	}
}
