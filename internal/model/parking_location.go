package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ParkingLocation is a bookable parking facility with a fixed number of spots.
type ParkingLocation struct {
	ID            string              `gorm:"primaryKey;size:36" json:"id"`
	Name          string              `gorm:"size:256;not null" json:"name"`
	Address       string              `gorm:"size:512;not null" json:"address"`
	Latitude      float64             `gorm:"not null;index:idx_location_coords,priority:1" json:"latitude"`
	Longitude     float64             `gorm:"not null;index:idx_location_coords,priority:2" json:"longitude"`
	OwnerID       string              `gorm:"size:64;not null;index" json:"ownerId"`
	TotalCapacity int                 `gorm:"not null" json:"totalCapacity"`
	HourlyRate    decimal.Decimal     `gorm:"type:numeric(10,2);not null" json:"hourlyRate"`
	DailyRate     decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"dailyRate"`
	IsActive      bool                `gorm:"not null" json:"isActive"`
	CreatedAt     time.Time           `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time           `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate assigns a random identifier when none was supplied.
func (l *ParkingLocation) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
