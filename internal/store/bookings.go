package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"parking-booking-backend/internal/model"
)

// CountOverlapping counts spot-holding bookings at a location whose half-open
// interval intersects [start, end). excludeID, when set, is left out.
func (s *gormStore) CountOverlapping(ctx context.Context, parkingID string, start, end time.Time, excludeID string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Booking{}).
		Where("parking_id = ? AND status IN ? AND start_time < ? AND end_time > ?",
			parkingID, statusStrings(model.ActiveStatuses), end.UTC(), start.UTC())
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings: %w", err)
	}
	return n, nil
}

func (s *gormStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (s *gormStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// LockBooking reads a booking and holds its row lock for the transaction.
// Callers lock the booking before the location's occupancy row.
func (s *gormStore) LockBooking(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	if err := forUpdate(s.db.WithContext(ctx)).Where("id = ?", id).Take(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// TransitionBooking moves a booking from one status to another, applying
// changes in the same statement. The update only matches while the stored
// status is still from, so a duplicate signal finds no row.
func (s *gormStore) TransitionBooking(ctx context.Context, id string, from, to model.BookingStatus, changes map[string]interface{}) error {
	updates := make(map[string]interface{}, len(changes)+1)
	for k, v := range changes {
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		updates[k] = v
	}
	updates["status"] = string(to)

	res := s.db.WithContext(ctx).Model(&model.Booking{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to move booking %s from %s to %s: %w", id, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// ListBookings returns a page of bookings, newest first, and the total match count.
func (s *gormStore) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Booking{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ParkingID != "" {
		q = q.Where("parking_id = ?", f.ParkingID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(f.Statuses))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var bookings []model.Booking
	q = q.Order("created_at DESC").Order("id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Find(&bookings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}

// FindExpiredPending returns pending bookings whose end time is at or before cutoff.
func (s *gormStore) FindExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	q := s.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", string(model.BookingPending), cutoff.UTC()).
		Order("end_time")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var bookings []model.Booking
	if err := q.Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to find expired bookings: %w", err)
	}
	return bookings, nil
}
