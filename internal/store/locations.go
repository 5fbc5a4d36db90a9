package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-booking-backend/internal/model"
)

// CreateLocation inserts a location together with its occupancy row, which
// starts with every spot available.
func (s *gormStore) CreateLocation(ctx context.Context, loc *model.ParkingLocation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(loc).Error; err != nil {
			return fmt.Errorf("failed to create parking location: %w", err)
		}
		occ := model.Occupancy{ParkingID: loc.ID, Available: loc.TotalCapacity}
		if err := tx.Create(&occ).Error; err != nil {
			return fmt.Errorf("failed to create occupancy for %s: %w", loc.ID, err)
		}
		return nil
	})
}

func (s *gormStore) GetLocation(ctx context.Context, id string) (*model.ParkingLocation, error) {
	var loc model.ParkingLocation
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&loc).Error; err != nil {
		return nil, notFound(err)
	}
	return &loc, nil
}

// UpdateLocation writes changes to a location's descriptive columns. Capacity
// is not among them: the occupancy row is sized from it.
func (s *gormStore) UpdateLocation(ctx context.Context, id string, changes map[string]interface{}) error {
	if _, ok := changes["total_capacity"]; ok {
		return fmt.Errorf("total_capacity cannot be changed in place")
	}
	res := s.db.WithContext(ctx).Model(&model.ParkingLocation{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("failed to update parking location %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListLocationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.ParkingLocation{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list parking locations: %w", err)
	}
	return ids, nil
}

// FindLocationsInBox returns the active locations inside box.
func (s *gormStore) FindLocationsInBox(ctx context.Context, box BoundingBox) ([]model.ParkingLocation, error) {
	var locs []model.ParkingLocation
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng).
		Find(&locs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search parking locations: %w", err)
	}
	return locs, nil
}
