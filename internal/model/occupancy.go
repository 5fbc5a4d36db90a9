package model

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// Occupancy holds the live spot counters of one parking location (hot table).
// Rows are only ever mutated through the store's delta operations.
type Occupancy struct {
	ParkingID   string    `gorm:"primaryKey;size:36" json:"parkingId"`
	Available   int       `gorm:"not null" json:"available"`
	Occupied    int       `gorm:"not null" json:"occupied"`
	Reserved    int       `gorm:"not null" json:"reserved"`
	LastEntryAt null.Time `json:"lastEntryAt"`
	LastExitAt  null.Time `json:"lastExitAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName pins the table name; the default pluralization would be "occupancies".
func (Occupancy) TableName() string {
	return "occupancies"
}
