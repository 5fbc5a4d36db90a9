package booking

import (
	"context"
	"errors"

	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

// Role is the caller's privilege level as asserted by the gateway.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// ParseRole maps a header value to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOwner, RoleAdmin:
		return Role(s)
	default:
		return RoleUser
	}
}

// Caller identifies who is performing an operation.
type Caller struct {
	ID   string
	Role Role
}

// System is the caller used for system-initiated transitions.
var System = Caller{ID: "system", Role: RoleAdmin}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// canModify reports whether c may change b.
func (c Caller) canModify(b *model.Booking) bool {
	return c.IsAdmin() || (c.ID != "" && b.UserID == c.ID)
}

// authorizeRead allows the booking's user, admins, and the owner of the
// location the booking is for.
func authorizeRead(ctx context.Context, st store.Store, c Caller, b *model.Booking) error {
	if c.canModify(b) {
		return nil
	}
	if c.Role == RoleOwner && c.ID != "" {
		loc, err := st.GetLocation(ctx, b.ParkingID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if loc != nil && loc.OwnerID == c.ID {
			return nil
		}
	}
	return ErrForbidden
}

func authorizeWrite(c Caller, b *model.Booking) error {
	if c.canModify(b) {
		return nil
	}
	return ErrForbidden
}
