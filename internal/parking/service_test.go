package parking_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/parking"
	"parking-booking-backend/internal/store"
	"parking-booking-backend/internal/testutil"
)

var (
	owner    = booking.Caller{ID: "owner-1", Role: booking.RoleOwner}
	stranger = booking.Caller{ID: "owner-2", Role: booking.RoleOwner}
	admin    = booking.Caller{ID: "root", Role: booking.RoleAdmin}
)

func newService(t *testing.T) (*parking.Service, store.Store) {
	t.Helper()
	st := store.NewGormStore(testutil.NewSQLiteDB(t))
	return parking.NewService(st), st
}

func registerAt(t *testing.T, svc *parking.Service, name string, lat, lng float64) *model.ParkingLocation {
	t.Helper()
	loc, err := svc.Register(context.Background(), owner, parking.RegisterRequest{
		Name:          name,
		Address:       name + " street",
		Latitude:      lat,
		Longitude:     lng,
		TotalCapacity: 10,
		HourlyRate:    decimal.RequireFromString("2.50"),
	})
	require.NoError(t, err)
	return loc
}

func TestRegister_CreatesLocationAndOccupancy(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	daily := decimal.RequireFromString("20")
	loc, err := svc.Register(ctx, owner, parking.RegisterRequest{
		Name:          "  Harbor Lot ",
		Address:       "Pier 4",
		Latitude:      53.54,
		Longitude:     9.98,
		TotalCapacity: 25,
		HourlyRate:    decimal.RequireFromString("3.456"),
		DailyRate:     &daily,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, loc.ID)
	assert.Equal(t, "Harbor Lot", loc.Name)
	assert.Equal(t, "owner-1", loc.OwnerID)
	assert.True(t, loc.IsActive)
	assert.Equal(t, "3.46", loc.HourlyRate.StringFixed(2))

	occ, err := st.GetOccupancy(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, occ.Available)
	assert.Zero(t, occ.Occupied)
	assert.Zero(t, occ.Reserved)
}

func TestRegister_RejectsInvalidInput(t *testing.T) {
	svc, _ := newService(t)
	negative := decimal.RequireFromString("-1")

	cases := map[string]parking.RegisterRequest{
		"missing name":      {Address: "a", TotalCapacity: 1},
		"missing address":   {Name: "n", TotalCapacity: 1},
		"zero capacity":     {Name: "n", Address: "a"},
		"negative hourly":   {Name: "n", Address: "a", TotalCapacity: 1, HourlyRate: negative},
		"negative daily":    {Name: "n", Address: "a", TotalCapacity: 1, DailyRate: &negative},
		"latitude too high": {Name: "n", Address: "a", TotalCapacity: 1, Latitude: 91},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), owner, req)
			assert.ErrorIs(t, err, booking.ErrInvalidInput)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestNearby_SortsByDistanceAndFiltersRadius(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	far := registerAt(t, svc, "far", 52.5290, 13.4050)   // ~1 km north
	near := registerAt(t, svc, "near", 52.5205, 13.4050) // ~55 m north
	registerAt(t, svc, "other city", 48.137, 11.575)

	results, err := svc.Nearby(ctx, 52.52, 13.405, 1500)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near.ID, results[0].ID)
	assert.Equal(t, far.ID, results[1].ID)
	assert.InDelta(t, 55.6, results[0].DistanceMeters, 1)
	assert.InDelta(t, 1000.8, results[1].DistanceMeters, 5)

	results, err = svc.Nearby(ctx, 52.52, 13.405, 0)
	require.NoError(t, err)
	require.Len(t, results, 1, "default radius of 1000m stops short of the far lot")
	assert.Equal(t, near.ID, results[0].ID)
}

func TestNearby_RejectsSmallRadius(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Nearby(context.Background(), 52.52, 13.405, 50)
	assert.ErrorIs(t, err, booking.ErrInvalidInput)
}

func TestNearby_SkipsInactive(t *testing.T) {
	svc, _ := newService(t)
	inactive := false
	_, err := svc.Register(context.Background(), owner, parking.RegisterRequest{
		Name: "closed", Address: "x", Latitude: 52.52, Longitude: 13.405,
		TotalCapacity: 1, IsActive: &inactive,
	})
	require.NoError(t, err)

	results, err := svc.Nearby(context.Background(), 52.52, 13.405, 500)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdatePricing(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	loc := registerAt(t, svc, "garage", 52.52, 13.405)

	hourly := decimal.RequireFromString("4")
	daily := decimal.RequireFromString("30")

	_, err := svc.UpdatePricing(ctx, stranger, loc.ID, hourly, &daily)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	_, err = svc.UpdatePricing(ctx, owner, loc.ID, decimal.RequireFromString("-2"), nil)
	assert.ErrorIs(t, err, booking.ErrInvalidInput)

	p, err := svc.UpdatePricing(ctx, owner, loc.ID, hourly, &daily)
	require.NoError(t, err)
	assert.Equal(t, "4.00", p.HourlyRate.StringFixed(2))
	require.True(t, p.DailyRate.Valid)
	assert.Equal(t, "30.00", p.DailyRate.Decimal.StringFixed(2))

	p, err = svc.UpdatePricing(ctx, admin, loc.ID, decimal.RequireFromString("5"), nil)
	require.NoError(t, err)
	assert.Equal(t, "5.00", p.HourlyRate.StringFixed(2))
	assert.True(t, p.DailyRate.Valid, "daily rate is kept when omitted")

	_, err = svc.UpdatePricing(ctx, admin, "missing", hourly, nil)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}
