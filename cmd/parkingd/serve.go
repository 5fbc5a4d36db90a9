package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"parking-booking-backend/internal/api"
	"parking-booking-backend/internal/db"
	"parking-booking-backend/internal/reconcile"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.close()

			if migrate {
				if err := db.Migrate(a.db, &cfg.Database); err != nil {
					return err
				}
				logger.Println("database migrated")
			}

			// Create a context that can be cancelled
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a.start(ctx)

			reconciler := reconcile.NewService(cfg.Reconciler, a.bookings, a.store)
			go reconciler.Run(ctx)

			handler := api.NewHandler(a.store, a.bookings, a.parking, a.webpush).
				WithLive(a.hub).
				WithCache(a.cache)
			router := api.NewRouter(handler, api.RouterConfig{
				RateLimit: rate.Limit(cfg.Server.RateLimitPerSec),
				RateBurst: cfg.Server.RateLimitBurst,
				Metrics:   a.metrics,
			})
			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
				Handler: router,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			// Setup signal handling for graceful shutdown
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-stop:
				logger.Println("Shutdown signal received, stopping services...")
			case err := <-serveErr:
				return fmt.Errorf("HTTP server ListenAndServe: %w", err)
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP server Shutdown: %w", err)
			}
			cancel()

			logger.Println("Server gracefully stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Run schema migrations before serving")
	return cmd
}
