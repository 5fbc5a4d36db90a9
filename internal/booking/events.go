package booking

import (
	"time"

	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

// EventKind names what happened to a booking.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventUpdated    EventKind = "updated"
	EventExtended   EventKind = "extended"
	EventCancelled  EventKind = "cancelled"
	EventExpired    EventKind = "expired"
	EventCheckedIn  EventKind = "checked_in"
	EventCheckedOut EventKind = "checked_out"
)

// Event describes a committed booking change. Occupancy is the location's
// counters as read right after the commit; it may be nil.
type Event struct {
	Kind      EventKind
	BookingID string
	ParkingID string
	UserID    string
	From      model.BookingStatus
	To        model.BookingStatus
	At        time.Time
	Occupancy *model.Occupancy
}

// Listener receives events after their transaction has committed.
// Implementations must not block.
type Listener interface {
	BookingChanged(e Event)
}

// Recorder collects booking metrics.
type Recorder interface {
	AdmissionDecided(outcome string)
	TransitionApplied(from, to model.BookingStatus)
	LedgerCorrected(parkingID string, d store.Delta)
}

type nopRecorder struct{}

func (nopRecorder) AdmissionDecided(string) {}
func (nopRecorder) TransitionApplied(model.BookingStatus, model.BookingStatus) {}
func (nopRecorder) LedgerCorrected(string, store.Delta) {}

// Admission outcomes reported to the Recorder.
const (
	OutcomeAdmitted    = "admitted"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)
