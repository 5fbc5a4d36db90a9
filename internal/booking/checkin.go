package booking

import (
	"context"
	"fmt"

	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

// VerifyResult is returned by Verify.
type VerifyResult struct {
	Status  model.BookingStatus `json:"status"`
	Message string              `json:"message"`
}

// Verify performs one step of the gate protocol. The first valid scan checks
// the vehicle in, the second checks it out. Scans of a finished booking fail
// without touching the counters.
func (s *Service) Verify(ctx context.Context, id, credential string) (*VerifyResult, error) {
	now := s.clock()

	var (
		b        *model.Booking
		from, to model.BookingStatus
		kind     EventKind
	)
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		b, err = tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if !credentialsMatch(b.Credential, credential) {
			return ErrInvalidCredential
		}

		var (
			delta   store.Delta
			changes map[string]interface{}
		)
		from = b.Status
		switch b.Status {
		case model.BookingPending:
			to, kind = model.BookingActive, EventCheckedIn
			delta = store.Delta{Reserved: -1, Occupied: 1, EntryAt: &now}
			changes = map[string]interface{}{"checked_in_at": now}
		case model.BookingActive:
			to, kind = model.BookingCompleted, EventCheckedOut
			delta = store.Delta{Occupied: -1, Available: 1, ExitAt: &now}
			changes = map[string]interface{}{"checked_out_at": now}
		default:
			return fmt.Errorf("%w: booking is %s", ErrInvalidState, b.Status)
		}

		if err := tx.TransitionBooking(ctx, b.ID, from, to, changes); err != nil {
			return err
		}
		return tx.ApplyDelta(ctx, b.ParkingID, delta)
	})
	if err != nil {
		return nil, translate(err)
	}

	b.Status = to
	s.recorder.TransitionApplied(from, to)
	s.emit(ctx, kind, b, from, to)
	return &VerifyResult{Status: to, Message: fmt.Sprintf("Booking is now %s", to)}, nil
}
