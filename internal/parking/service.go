// Package parking manages the parking locations bookings are made against.
package parking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

const (
	DefaultRadiusMeters = 1000.0
	MinRadiusMeters     = 100.0
)

type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// RegisterRequest describes a new location. Coordinates are required; address
// resolution happens upstream.
type RegisterRequest struct {
	Name          string
	Address       string
	Latitude      float64
	Longitude     float64
	TotalCapacity int
	HourlyRate    decimal.Decimal
	DailyRate     *decimal.Decimal
	IsActive      *bool
}

// NearbyResult is a location with its distance from the search point.
type NearbyResult struct {
	model.ParkingLocation
	DistanceMeters float64 `json:"distance"`
}

// Pricing is a location's rates.
type Pricing struct {
	HourlyRate decimal.Decimal     `json:"hourlyRate"`
	DailyRate  decimal.NullDecimal `json:"dailyRate"`
}

// Register creates a location owned by the caller together with its
// occupancy counters.
func (s *Service) Register(ctx context.Context, caller booking.Caller, req RegisterRequest) (*model.ParkingLocation, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	loc := &model.ParkingLocation{
		Name:          strings.TrimSpace(req.Name),
		Address:       strings.TrimSpace(req.Address),
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		OwnerID:       caller.ID,
		TotalCapacity: req.TotalCapacity,
		HourlyRate:    req.HourlyRate.Round(2),
		IsActive:      true,
	}
	if req.DailyRate != nil {
		loc.DailyRate = decimal.NewNullDecimal(req.DailyRate.Round(2))
	}
	if req.IsActive != nil {
		loc.IsActive = *req.IsActive
	}

	if err := s.store.CreateLocation(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

func validate(req RegisterRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return fmt.Errorf("%w: name is required", booking.ErrInvalidInput)
	case strings.TrimSpace(req.Address) == "":
		return fmt.Errorf("%w: address is required", booking.ErrInvalidInput)
	case req.TotalCapacity <= 0:
		return fmt.Errorf("%w: total capacity must be positive", booking.ErrInvalidInput)
	case req.HourlyRate.IsNegative():
		return fmt.Errorf("%w: hourly rate must not be negative", booking.ErrInvalidInput)
	case req.DailyRate != nil && req.DailyRate.IsNegative():
		return fmt.Errorf("%w: daily rate must not be negative", booking.ErrInvalidInput)
	case req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180:
		return fmt.Errorf("%w: coordinates out of range", booking.ErrInvalidInput)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.ParkingLocation, error) {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return loc, nil
}

// Nearby returns active locations within radius meters, closest first. The
// database narrows candidates to a bounding box; distances are exact.
func (s *Service) Nearby(ctx context.Context, lat, lng, radius float64) ([]NearbyResult, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", booking.ErrInvalidInput)
	}
	if radius == 0 {
		radius = DefaultRadiusMeters
	}
	if radius < MinRadiusMeters {
		return nil, fmt.Errorf("%w: radius must be at least %.0f meters", booking.ErrInvalidInput, MinRadiusMeters)
	}

	deg := radius / metersPerDegree
	locs, err := s.store.FindLocationsInBox(ctx, store.BoundingBox{
		MinLat: lat - deg, MaxLat: lat + deg,
		MinLng: lng - deg, MaxLng: lng + deg,
	})
	if err != nil {
		return nil, err
	}

	results := make([]NearbyResult, 0, len(locs))
	for _, l := range locs {
		results = append(results, NearbyResult{
			ParkingLocation: l,
			DistanceMeters:  haversine(lat, lng, l.Latitude, l.Longitude),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceMeters < results[j].DistanceMeters
	})
	return results, nil
}

func (s *Service) Pricing(ctx context.Context, id string) (*Pricing, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Pricing{HourlyRate: loc.HourlyRate, DailyRate: loc.DailyRate}, nil
}

// UpdatePricing changes the rates of a location. Existing bookings keep the
// price they were admitted with.
func (s *Service) UpdatePricing(ctx context.Context, caller booking.Caller, id string, hourly decimal.Decimal, daily *decimal.Decimal) (*Pricing, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && loc.OwnerID != caller.ID {
		return nil, fmt.Errorf("%w: not authorized to update pricing", booking.ErrForbidden)
	}
	if hourly.IsNegative() || (daily != nil && daily.IsNegative()) {
		return nil, fmt.Errorf("%w: rates must not be negative", booking.ErrInvalidInput)
	}

	changes := map[string]interface{}{"hourly_rate": hourly.Round(2)}
	if daily != nil {
		changes["daily_rate"] = daily.Round(2)
	}
	if err := s.store.UpdateLocation(ctx, id, changes); err != nil {
		return nil, wrapNotFound(err)
	}
	return s.Pricing(ctx, id)
}

func wrapNotFound(err error) error {
	if err == store.ErrNotFound {
		return fmt.Errorf("%w: parking location not found", booking.ErrNotFound)
	}
	return err
}
