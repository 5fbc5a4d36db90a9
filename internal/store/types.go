package store

import (
	"time"

	"parking-booking-backend/internal/model"
)

// Delta is a signed change to a location's counters. Timestamps, when set,
// overwrite the last entry/exit markers.
type Delta struct {
	Available int
	Occupied  int
	Reserved  int
	EntryAt   *time.Time
	ExitAt    *time.Time
}

// IsZero reports whether applying d would change nothing.
func (d Delta) IsZero() bool {
	return d.Available == 0 && d.Occupied == 0 && d.Reserved == 0 && d.EntryAt == nil && d.ExitAt == nil
}

// StatusCounts is the number of spot-holding bookings per status at a location.
type StatusCounts struct {
	Pending int64
	Active  int64
}

// BookingFilter narrows ListBookings. Empty fields are ignored.
type BookingFilter struct {
	UserID    string
	ParkingID string
	Statuses  []model.BookingStatus
	Limit     int
	Offset    int
}

// BoundingBox is an inclusive latitude/longitude rectangle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}
