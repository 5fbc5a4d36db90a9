package booking

import (
	"context"
	"time"

	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

// Arbiter decides whether a location can take one more booking for an
// interval. It counts bookings; it never trusts the occupancy counters.
type Arbiter struct {
	store store.Store
}

func NewArbiter(s store.Store) *Arbiter {
	return &Arbiter{store: s}
}

// CheckAvailability is a point-in-time answer and takes no locks. Admission
// repeats the check under the location's lock.
func (a *Arbiter) CheckAvailability(ctx context.Context, locationID string, start, end time.Time) (bool, error) {
	if !end.After(start) {
		return false, ErrInvalidInterval
	}
	loc, err := a.store.GetLocation(ctx, locationID)
	if err != nil {
		return false, translate(err)
	}
	n, err := a.store.CountOverlapping(ctx, loc.ID, start, end, "")
	if err != nil {
		return false, err
	}
	return n < int64(loc.TotalCapacity), nil
}

// admit checks capacity inside tx, which must already hold the location's
// occupancy lock. excludeID leaves a booking out of its own re-check.
func admit(ctx context.Context, tx store.Store, loc *model.ParkingLocation, start, end time.Time, excludeID string) error {
	n, err := tx.CountOverlapping(ctx, loc.ID, start, end, excludeID)
	if err != nil {
		return err
	}
	if n >= int64(loc.TotalCapacity) {
		return ErrCapacityExceeded
	}
	return nil
}
