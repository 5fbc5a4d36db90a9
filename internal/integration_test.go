package internal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/reconcile"
	"parking-booking-backend/internal/store"
	"parking-booking-backend/internal/testutil"
)

type eventLog struct {
	mu     sync.Mutex
	events []booking.Event
}

func (l *eventLog) BookingChanged(e booking.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) last() booking.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

// TestBookingLifecycle walks one booking from creation to check-out and
// verifies the occupancy counters at each step.
func TestBookingLifecycle(t *testing.T) {
	gormDB := testutil.NewSQLiteDB(t)
	st := store.NewGormStore(gormDB)
	loc := testutil.SeedLocation(t, gormDB, 2)

	t0 := time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)
	events := &eventLog{}
	svc := booking.NewService(st,
		booking.WithListener(events),
		booking.WithClock(func() time.Time { return t0 }),
	)
	ctx := context.Background()
	driver := booking.Caller{ID: "driver-7", Role: booking.RoleUser}

	occupancy := func(t *testing.T) *model.Occupancy {
		t.Helper()
		occ, err := st.GetOccupancy(ctx, loc.ID)
		require.NoError(t, err)
		return occ
	}

	var b *model.Booking
	t.Run("Step 1: Booking reserves a spot", func(t *testing.T) {
		var err error
		b, err = svc.Create(ctx, driver, booking.CreateRequest{
			ParkingID:    loc.ID,
			Start:        t0.Add(time.Hour),
			End:          t0.Add(150 * time.Minute),
			VehiclePlate: "m-ab 1234",
		})
		require.NoError(t, err)
		assert.Equal(t, model.BookingPending, b.Status)
		assert.Equal(t, "15.00", b.TotalPrice.StringFixed(2))
		assert.Equal(t, "M-AB 1234", b.VehiclePlate.String)

		occ := occupancy(t)
		assert.Equal(t, 1, occ.Available)
		assert.Equal(t, 1, occ.Reserved)
		assert.Zero(t, occ.Occupied)

		e := events.last()
		assert.Equal(t, booking.EventCreated, e.Kind)
		require.NotNil(t, e.Occupancy)
		assert.Equal(t, 1, e.Occupancy.Reserved)
	})

	t.Run("Step 2: First scan checks in", func(t *testing.T) {
		res, err := svc.Verify(ctx, b.ID, b.Credential)
		require.NoError(t, err)
		assert.Equal(t, model.BookingActive, res.Status)

		occ := occupancy(t)
		assert.Equal(t, 1, occ.Available)
		assert.Zero(t, occ.Reserved)
		assert.Equal(t, 1, occ.Occupied)
		assert.True(t, occ.LastEntryAt.Valid)
		assert.True(t, occ.LastEntryAt.Time.Equal(t0))
	})

	t.Run("Step 3: Second scan checks out", func(t *testing.T) {
		res, err := svc.Verify(ctx, b.ID, b.Credential)
		require.NoError(t, err)
		assert.Equal(t, model.BookingCompleted, res.Status)

		occ := occupancy(t)
		assert.Equal(t, 2, occ.Available)
		assert.Zero(t, occ.Reserved)
		assert.Zero(t, occ.Occupied)
		assert.True(t, occ.LastExitAt.Valid)
		assert.Equal(t, booking.EventCheckedOut, events.last().Kind)
	})

	t.Run("Step 4: Further scans change nothing", func(t *testing.T) {
		before := occupancy(t)
		_, err := svc.Verify(ctx, b.ID, b.Credential)
		assert.ErrorIs(t, err, booking.ErrInvalidState)

		after := occupancy(t)
		assert.Equal(t, before.Available, after.Available)
		assert.Equal(t, before.Occupied, after.Occupied)
		assert.Equal(t, before.Reserved, after.Reserved)

		stored, err := st.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, stored.CheckedInAt.Valid)
		assert.True(t, stored.CheckedOutAt.Valid)
	})
}

// TestLedgerConservation runs a random mix of operations from several
// goroutines and checks that the counters match what the bookings imply.
func TestLedgerConservation(t *testing.T) {
	gormDB := testutil.NewSQLiteDB(t)
	st := store.NewGormStore(gormDB)
	const capacity = 5
	loc := testutil.SeedLocation(t, gormDB, capacity)

	t0 := time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)
	svc := booking.NewService(st)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			caller := booking.Caller{ID: fmt.Sprintf("driver-%d", w), Role: booking.RoleUser}
			for i := 0; i < 8; i++ {
				start := t0.Add(time.Duration(rng.IntN(6)) * time.Hour)
				b, err := svc.Create(ctx, caller, booking.CreateRequest{
					ParkingID: loc.ID, Start: start, End: start.Add(2 * time.Hour),
				})
				if err != nil {
					if !booking.Retryable(err) {
						t.Errorf("unexpected create error: %v", err)
					}
					continue
				}
				switch rng.IntN(4) {
				case 0:
					_, err = svc.Cancel(ctx, caller, b.ID)
				case 1:
					_, err = svc.Verify(ctx, b.ID, b.Credential)
				case 2:
					if _, err = svc.Verify(ctx, b.ID, b.Credential); err == nil {
						_, err = svc.Verify(ctx, b.ID, b.Credential)
					}
				}
				if err != nil && !errors.Is(err, booking.ErrUnavailable) {
					t.Errorf("unexpected transition error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	counts, err := st.CountByStatus(ctx, loc.ID)
	require.NoError(t, err)
	occ, err := st.GetOccupancy(ctx, loc.ID)
	require.NoError(t, err)

	assert.EqualValues(t, counts.Pending, occ.Reserved)
	assert.EqualValues(t, counts.Active, occ.Occupied)

	// A reconcile pass finds nothing to fix in reserved or occupied.
	r := reconcile.NewService(config.ReconcilerConfig{}, svc, st)
	r.ReconcileOnce(ctx)
	fixed, err := st.GetOccupancy(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, occ.Reserved, fixed.Reserved)
	assert.Equal(t, occ.Occupied, fixed.Occupied)
	assert.GreaterOrEqual(t, fixed.Available, 0)
	assert.LessOrEqual(t, fixed.Available, capacity)
}
