// Package reconcile runs the periodic housekeeping of the booking ledger.
package reconcile

import (
	"context"
	"log"
	"time"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/store"
)

// Ledger is the part of the booking service the reconciler drives.
type Ledger interface {
	ExpireNoShows(ctx context.Context, now time.Time, limit int) (int, error)
	ReconcileLedger(ctx context.Context, parkingID string) (store.Delta, error)
}

// LocationLister enumerates the locations to reconcile.
type LocationLister interface {
	ListLocationIDs(ctx context.Context) ([]string, error)
}

// Service expires no-show bookings and repairs drifted occupancy counters on
// a fixed interval.
type Service struct {
	cfg       config.ReconcilerConfig
	ledger    Ledger
	locations LocationLister
	now       func() time.Time
}

// Result summarizes one reconcile pass.
type Result struct {
	Expired   int
	Corrected int
	Failed    int
}

func NewService(cfg config.ReconcilerConfig, ledger Ledger, locations LocationLister) *Service {
	return &Service{
		cfg:       cfg,
		ledger:    ledger,
		locations: locations,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the reconcile loop. It returns when ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Reconciler is disabled. Not starting.")
		return
	}
	log.Println("Starting reconciler service...")

	s.ReconcileOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reconciler service shutting down.")
			return
		case <-timer.C:
			s.ReconcileOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// ReconcileOnce performs a single pass. Failures on one location are logged
// and do not stop the others.
func (s *Service) ReconcileOnce(ctx context.Context) Result {
	log.Println("Executing reconcile cycle...")
	var res Result

	if s.cfg.ExpireNoShows {
		batch := s.cfg.BatchSize
		if batch <= 0 {
			batch = 100
		}
		for {
			n, err := s.ledger.ExpireNoShows(ctx, s.now(), batch)
			res.Expired += n
			if err != nil {
				log.Printf("Error expiring no-show bookings: %v", err)
				break
			}
			if n < batch {
				break
			}
		}
	}

	ids, err := s.locations.ListLocationIDs(ctx)
	if err != nil {
		log.Printf("Error listing parking locations: %v", err)
		return res
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res
		}
		d, err := s.ledger.ReconcileLedger(ctx, id)
		if err != nil {
			log.Printf("Error reconciling occupancy for %s: %v", id, err)
			res.Failed++
			continue
		}
		if !d.IsZero() {
			res.Corrected++
		}
	}

	log.Printf("Reconcile cycle finished: %d expired, %d corrected, %d failed.", res.Expired, res.Corrected, res.Failed)
	return res
}
