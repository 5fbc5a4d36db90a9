package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-booking-backend/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrContention is returned when a transaction kept losing to concurrent
	// writers until the retry budget was exhausted.
	ErrContention = errors.New("store: contention retries exhausted")
	// ErrStaleState is returned by a conditional transition whose expected
	// current status no longer matches the stored row.
	ErrStaleState = errors.New("store: stale state")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn in a single database transaction, retrying the
	// whole unit on lock contention. Nested calls join the outer transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateLocation(ctx context.Context, loc *model.ParkingLocation) error
	GetLocation(ctx context.Context, id string) (*model.ParkingLocation, error)
	UpdateLocation(ctx context.Context, id string, changes map[string]interface{}) error
	ListLocationIDs(ctx context.Context) ([]string, error)
	FindLocationsInBox(ctx context.Context, box BoundingBox) ([]model.ParkingLocation, error)

	GetOccupancy(ctx context.Context, parkingID string) (*model.Occupancy, error)
	LockOccupancy(ctx context.Context, parkingID string) (*model.Occupancy, error)
	ApplyDelta(ctx context.Context, parkingID string, d Delta) error
	CountByStatus(ctx context.Context, parkingID string) (StatusCounts, error)

	CountOverlapping(ctx context.Context, parkingID string, start, end time.Time, excludeID string) (int64, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	LockBooking(ctx context.Context, id string) (*model.Booking, error)
	TransitionBooking(ctx context.Context, id string, from, to model.BookingStatus, changes map[string]interface{}) error
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, int64, error)
	FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db            *gorm.DB
	inTx          bool
	retry         RetryPolicy
	lockTimeoutMs int
}

// Option configures a gormStore.
type Option func(*gormStore)

// WithRetryPolicy sets how contended transactions are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *gormStore) { s.retry = p }
}

// WithLockTimeout bounds how long a postgres transaction waits for a row lock.
func WithLockTimeout(ms int) Option {
	return func(s *gormStore) { s.lockTimeoutMs = ms }
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{db: db, retry: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if s.lockTimeoutMs > 0 && isPostgres(tx) {
				// SET does not accept bind parameters.
				stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeoutMs)
				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("failed to set lock timeout: %w", err)
				}
			}
			return fn(&gormStore{db: tx, inTx: true, retry: s.retry, lockTimeoutMs: s.lockTimeoutMs})
		})
	})
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// forUpdate returns a row-locking clause for dialects that support it. SQLite
// has no row locks; its writers are serialized by BEGIN IMMEDIATE instead.
func forUpdate(db *gorm.DB) *gorm.DB {
	if isPostgres(db) {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
