package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/db"
	"parking-booking-backend/internal/live"
	"parking-booking-backend/internal/metrics"
	"parking-booking-backend/internal/mw"
	"parking-booking-backend/internal/notification"
	"parking-booking-backend/internal/parking"
	"parking-booking-backend/internal/store"
)

// app wires the components shared by the subcommands.
type app struct {
	db       *gorm.DB
	store    store.Store
	metrics  *metrics.Metrics
	bookings *booking.Service
	parking  *parking.Service
	hub      *live.Hub
	cache    *mw.ResponseCache
	pool     *notification.WorkerPool
	webpush  *webpush.Options
}

// newApp opens the database and builds the services. The live feed and the
// response cache only exist in the HTTP server; push notifications follow
// the push config in every mode.
func newApp(cfg *config.Config, withLive bool) (*app, error) {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")

	m := metrics.New()
	policy := store.RetryPolicy{
		MaxAttempts: cfg.Booking.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Booking.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Booking.RetryMaxDelayMs) * time.Millisecond,
		OnRetry:     m.TransactionRetried,
	}
	a := &app{
		db:      gormDB,
		store:   store.NewGormStore(gormDB, store.WithRetryPolicy(policy), store.WithLockTimeout(cfg.Database.LockTimeoutMs)),
		metrics: m,
	}
	logger.Println("data store initialized")

	opts := []booking.Option{
		booking.WithRecorder(m),
		booking.WithNoShowGrace(time.Duration(cfg.Booking.NoShowGraceMinutes) * time.Minute),
	}
	if withLive {
		a.hub = live.NewHub()
		a.cache = mw.NewResponseCache(cfg.Server.CacheTTL)
		opts = append(opts, booking.WithListener(a.cache), booking.WithListener(a.hub))
	}
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			return nil, fmt.Errorf("push is enabled but VAPID keys are not configured")
		}
		a.webpush = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		a.pool = notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, a.store, a.webpush)
		a.pool.OnDrop(m.NotificationDropped)
		opts = append(opts, booking.WithListener(a.pool))
	}

	a.bookings = booking.NewService(a.store, opts...)
	a.parking = parking.NewService(a.store)
	return a, nil
}

// start launches the goroutines of the attached listeners.
func (a *app) start(ctx context.Context) {
	if a.hub != nil {
		go a.hub.Run(ctx)
	}
	if a.pool != nil {
		a.pool.Start(ctx)
	}
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
