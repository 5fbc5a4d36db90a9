package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"
	"gorm.io/gorm"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// ActiveStatuses are the statuses that hold a spot.
var ActiveStatuses = []BookingStatus{BookingPending, BookingActive}

// Terminal reports whether no further transition is possible from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// PaymentStatus is tracked by an external payment collaborator.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Booking is a reservation of one spot at a location for [StartTime, EndTime).
type Booking struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	ParkingID     string          `gorm:"size:36;not null;index:idx_booking_overlap,priority:1" json:"parkingId"`
	UserID        string          `gorm:"size:64;not null;index:idx_booking_user,priority:1" json:"userId"`
	StartTime     time.Time       `gorm:"not null;index:idx_booking_overlap,priority:3" json:"startTime"`
	EndTime       time.Time       `gorm:"not null;index:idx_booking_overlap,priority:4" json:"endTime"`
	Status        BookingStatus   `gorm:"size:16;not null;index:idx_booking_overlap,priority:2" json:"status"`
	Credential    string          `gorm:"size:64;not null;uniqueIndex" json:"-"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"totalPrice"`
	VehiclePlate  null.String     `gorm:"size:20" json:"vehiclePlate"`
	PaymentStatus PaymentStatus   `gorm:"size:16;not null" json:"paymentStatus"`
	CheckedInAt   null.Time       `json:"checkedInAt"`
	CheckedOutAt  null.Time       `json:"checkedOutAt"`
	CancelledAt   null.Time       `json:"cancelledAt"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_booking_user,priority:2" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate assigns a random identifier when none was supplied.
func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
