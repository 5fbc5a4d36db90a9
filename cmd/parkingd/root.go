package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"parking-booking-backend/config"
)

var (
	configPath string
	cfg        *config.Config
	logger     = log.New(os.Stdout, "parking-backend ", log.LstdFlags)
)

var rootCmd = &cobra.Command{
	Use:   "parkingd",
	Short: "Parking booking backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Printf("configuration loaded successfully from %s", configPath)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Path to the YAML configuration file")
}
