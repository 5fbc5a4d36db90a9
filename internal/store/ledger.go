package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"parking-booking-backend/internal/model"
)

func (s *gormStore) GetOccupancy(ctx context.Context, parkingID string) (*model.Occupancy, error) {
	var occ model.Occupancy
	if err := s.db.WithContext(ctx).Where("parking_id = ?", parkingID).Take(&occ).Error; err != nil {
		return nil, notFound(err)
	}
	return &occ, nil
}

// LockOccupancy reads the counters of a location and holds the row lock until
// the surrounding transaction ends. Every admission for the location queues here.
func (s *gormStore) LockOccupancy(ctx context.Context, parkingID string) (*model.Occupancy, error) {
	var occ model.Occupancy
	tx := forUpdate(s.db.WithContext(ctx))
	if err := tx.Where("parking_id = ?", parkingID).Take(&occ).Error; err != nil {
		return nil, notFound(err)
	}
	return &occ, nil
}

// ApplyDelta adds d to the counters in a single UPDATE. Each counter is
// clamped at zero by the database, and available is also capped at the spots
// left over by the new reserved and occupied values, so no caller ever reads
// then writes and available never exceeds total capacity.
func (s *gormStore) ApplyDelta(ctx context.Context, parkingID string, d Delta) error {
	if d.IsZero() {
		return nil
	}

	updates := make(map[string]interface{}, 5)
	for col, delta := range map[string]int{"occupied": d.Occupied, "reserved": d.Reserved} {
		if delta != 0 {
			updates[col] = clampedAdd(s.db, col, delta)
		}
	}
	if d.Available != 0 {
		updates["available"] = cappedAvailable(s.db, d)
	}
	if d.EntryAt != nil {
		updates["last_entry_at"] = d.EntryAt.UTC()
	}
	if d.ExitAt != nil {
		updates["last_exit_at"] = d.ExitAt.UTC()
	}

	res := s.db.WithContext(ctx).Model(&model.Occupancy{}).Where("parking_id = ?", parkingID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to apply occupancy delta for %s: %w", parkingID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func clampedAdd(db *gorm.DB, col string, delta int) interface{} {
	if isPostgres(db) {
		return gorm.Expr("GREATEST("+col+" + ?, 0)", delta)
	}
	return gorm.Expr("MAX("+col+" + ?, 0)", delta)
}

// capacityOf reads the location's capacity for the occupancy row being updated.
const capacityOf = "(SELECT total_capacity FROM parking_locations WHERE parking_locations.id = occupancies.parking_id)"

// cappedAvailable bounds available by what the new reserved and occupied
// values leave free. Column references on the right of SET see the old row.
func cappedAvailable(db *gorm.DB, d Delta) interface{} {
	least, greatest := "MIN", "MAX"
	if isPostgres(db) {
		least, greatest = "LEAST", "GREATEST"
	}
	return gorm.Expr(
		least+"("+greatest+"(available + ?, 0), "+
			greatest+"("+capacityOf+" - "+greatest+"(reserved + ?, 0) - "+greatest+"(occupied + ?, 0), 0))",
		d.Available, d.Reserved, d.Occupied,
	)
}

// CountByStatus counts the spot-holding bookings at a location.
func (s *gormStore) CountByStatus(ctx context.Context, parkingID string) (StatusCounts, error) {
	type row struct {
		Status model.BookingStatus
		Total  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.Booking{}).
		Select("status, COUNT(*) AS total").
		Where("parking_id = ? AND status IN ?", parkingID, statusStrings(model.ActiveStatuses)).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, fmt.Errorf("failed to count bookings for %s: %w", parkingID, err)
	}

	var counts StatusCounts
	for _, r := range rows {
		switch r.Status {
		case model.BookingPending:
			counts.Pending = r.Total
		case model.BookingActive:
			counts.Active = r.Total
		}
	}
	return counts, nil
}

func statusStrings(statuses []model.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
