package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gopkg.in/guregu/null.v4"

	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/parse"
	"parking-booking-backend/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service runs the booking lifecycle. Every status change and its counter
// delta commit together in one transaction.
type Service struct {
	*Arbiter
	store         store.Store
	listeners     []Listener
	recorder      Recorder
	now           func() time.Time
	noShowGrace   time.Duration
	newCredential func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithListener registers l for committed booking events.
func WithListener(l Listener) Option {
	return func(s *Service) { s.listeners = append(s.listeners, l) }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecorder reports admissions and transitions to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithNoShowGrace sets how long after its end a pending booking is kept
// before ExpireNoShows cancels it.
func WithNoShowGrace(d time.Duration) Option {
	return func(s *Service) { s.noShowGrace = d }
}

// WithCredentialSource replaces the credential generator.
func WithCredentialSource(fn func() (string, error)) Option {
	return func(s *Service) { s.newCredential = fn }
}

// NewService creates a booking service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		Arbiter:       NewArbiter(st),
		store:         st,
		recorder:      nopRecorder{},
		now:           time.Now,
		newCredential: NewCredential,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	ParkingID    string
	Start        time.Time
	End          time.Time
	VehiclePlate string
}

// UpdatePatch holds the optional fields of an update.
type UpdatePatch struct {
	Start        *time.Time
	End          *time.Time
	VehiclePlate *string
}

// Availability is the answer to an availability query.
type Availability struct {
	Available        bool
	CurrentAvailable int
	TotalCapacity    int
	HourlyRate       string
}

// Page is one page of a booking listing.
type Page struct {
	Items []model.Booking
	Total int64
	Page  int
	Limit int
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Create admits and persists a pending booking for the caller.
func (s *Service) Create(ctx context.Context, caller Caller, req CreateRequest) (*model.Booking, error) {
	loc, err := s.store.GetLocation(ctx, req.ParkingID)
	if err != nil {
		return nil, translate(err)
	}
	if !loc.IsActive {
		return nil, fmt.Errorf("%w: parking location %s is inactive", ErrNotFound, loc.ID)
	}

	start, end := req.Start.UTC(), req.End.UTC()
	if !end.After(start) {
		return nil, ErrInvalidInterval
	}

	plate, err := normalizePlate(req.VehiclePlate)
	if err != nil {
		return nil, err
	}
	credential, err := s.newCredential()
	if err != nil {
		return nil, err
	}

	b := &model.Booking{
		ParkingID:     loc.ID,
		UserID:        caller.ID,
		StartTime:     start,
		EndTime:       end,
		Status:        model.BookingPending,
		Credential:    credential,
		TotalPrice:    Price(loc.HourlyRate, start, end),
		VehiclePlate:  plate,
		PaymentStatus: model.PaymentPending,
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockOccupancy(ctx, loc.ID); err != nil {
			return err
		}
		if err := admit(ctx, tx, loc, start, end, ""); err != nil {
			return err
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		return tx.ApplyDelta(ctx, loc.ID, store.Delta{Reserved: 1, Available: -1})
	})
	s.recorder.AdmissionDecided(admissionOutcome(err))
	if err != nil {
		return nil, translate(err)
	}

	s.recorder.TransitionApplied("", model.BookingPending)
	s.emit(ctx, EventCreated, b, "", model.BookingPending)
	return b, nil
}

func admissionOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAdmitted
	case errors.Is(err, ErrCapacityExceeded):
		return OutcomeRejected
	case errors.Is(translate(err), ErrUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}

// CheckAvailabilityDetail reports whether [start, end) can be booked along
// with the location's current counters and rate.
func (s *Service) CheckAvailabilityDetail(ctx context.Context, parkingID string, start, end time.Time) (*Availability, error) {
	loc, err := s.store.GetLocation(ctx, parkingID)
	if err != nil {
		return nil, translate(err)
	}
	ok, err := s.CheckAvailability(ctx, parkingID, start, end)
	if err != nil {
		return nil, err
	}

	current := loc.TotalCapacity
	if occ, err := s.store.GetOccupancy(ctx, parkingID); err == nil {
		current = occ.Available
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return &Availability{
		Available:        ok && loc.IsActive,
		CurrentAvailable: current,
		TotalCapacity:    loc.TotalCapacity,
		HourlyRate:       loc.HourlyRate.StringFixed(2),
	}, nil
}

// Get returns a booking the caller may see.
func (s *Service) Get(ctx context.Context, caller Caller, id string) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if err := authorizeRead(ctx, s.store, caller, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Credential returns the check-in token of a booking that can still be used.
func (s *Service) Credential(ctx context.Context, caller Caller, id string) (string, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return "", translate(err)
	}
	if err := authorizeWrite(caller, b); err != nil {
		return "", err
	}
	if b.Status.Terminal() {
		return "", fmt.Errorf("%w: booking is %s", ErrInvalidState, b.Status)
	}
	return b.Credential, nil
}

// List returns the caller's bookings, newest first.
func (s *Service) List(ctx context.Context, caller Caller, page, limit int) (*Page, error) {
	return s.list(ctx, caller, nil, page, limit)
}

// History returns the caller's completed and cancelled bookings.
func (s *Service) History(ctx context.Context, caller Caller, page, limit int) (*Page, error) {
	return s.list(ctx, caller, []model.BookingStatus{model.BookingCompleted, model.BookingCancelled}, page, limit)
}

func (s *Service) list(ctx context.Context, caller Caller, statuses []model.BookingStatus, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	items, total, err := s.store.ListBookings(ctx, store.BookingFilter{
		UserID:   caller.ID,
		Statuses: statuses,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Booking{}
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Update changes the interval or plate of a pending booking. A new interval
// goes through admission again, with the booking itself left out of the count.
func (s *Service) Update(ctx context.Context, caller Caller, id string, patch UpdatePatch) (*model.Booking, error) {
	var plate null.String
	if patch.VehiclePlate != nil {
		p, err := normalizePlate(*patch.VehiclePlate)
		if err != nil {
			return nil, err
		}
		plate = p
	}

	var updated *model.Booking
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeWrite(caller, b); err != nil {
			return err
		}
		if b.Status != model.BookingPending {
			return fmt.Errorf("%w: only pending bookings can be updated", ErrInvalidState)
		}

		changes := make(map[string]interface{})
		start, end := b.StartTime.UTC(), b.EndTime.UTC()
		if patch.Start != nil {
			start = patch.Start.UTC()
		}
		if patch.End != nil {
			end = patch.End.UTC()
		}
		if !start.Equal(b.StartTime) || !end.Equal(b.EndTime) {
			if !end.After(start) {
				return ErrInvalidInterval
			}
			loc, err := tx.GetLocation(ctx, b.ParkingID)
			if err != nil {
				return err
			}
			if _, err := tx.LockOccupancy(ctx, b.ParkingID); err != nil {
				return err
			}
			if err := admit(ctx, tx, loc, start, end, b.ID); err != nil {
				return err
			}
			changes["start_time"] = start
			changes["end_time"] = end
			changes["total_price"] = Price(loc.HourlyRate, start, end)
		}
		if patch.VehiclePlate != nil {
			changes["vehicle_plate"] = plate
		}
		if len(changes) > 0 {
			if err := tx.TransitionBooking(ctx, b.ID, b.Status, b.Status, changes); err != nil {
				return err
			}
		}

		updated, err = tx.GetBooking(ctx, b.ID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	s.emit(ctx, EventUpdated, updated, updated.Status, updated.Status)
	return updated, nil
}

// Cancel releases the spot held by a pending or active booking.
func (s *Service) Cancel(ctx context.Context, caller Caller, id string) (*model.Booking, error) {
	b, from, err := s.cancel(ctx, caller, id, nil)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventCancelled, b, from, model.BookingCancelled)
	return b, nil
}

// cancel moves a booking to cancelled and reverses the counter it held.
// When only is non-nil the booking must currently be in that status.
func (s *Service) cancel(ctx context.Context, caller Caller, id string, only *model.BookingStatus) (*model.Booking, model.BookingStatus, error) {
	now := s.clock()
	var (
		cancelled *model.Booking
		from      model.BookingStatus
	)
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeWrite(caller, b); err != nil {
			return err
		}
		if only != nil && b.Status != *only {
			return fmt.Errorf("%w: booking is %s", ErrInvalidState, b.Status)
		}

		var delta store.Delta
		switch b.Status {
		case model.BookingPending:
			delta = store.Delta{Reserved: -1, Available: 1}
		case model.BookingActive:
			delta = store.Delta{Occupied: -1, Available: 1}
		case model.BookingCancelled:
			return fmt.Errorf("%w: booking is already cancelled", ErrInvalidState)
		default:
			return fmt.Errorf("%w: cannot cancel a %s booking", ErrInvalidState, b.Status)
		}

		if err := tx.TransitionBooking(ctx, b.ID, b.Status, model.BookingCancelled,
			map[string]interface{}{"cancelled_at": now}); err != nil {
			return err
		}
		if err := tx.ApplyDelta(ctx, b.ParkingID, delta); err != nil {
			return err
		}

		from = b.Status
		b.Status = model.BookingCancelled
		b.CancelledAt = null.TimeFrom(now)
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, "", translate(err)
	}
	s.recorder.TransitionApplied(from, model.BookingCancelled)
	return cancelled, from, nil
}

// Extend moves the end of a pending or active booking later. The longer
// interval goes through admission again.
func (s *Service) Extend(ctx context.Context, caller Caller, id string, newEnd time.Time) (*model.Booking, error) {
	newEnd = newEnd.UTC()

	var extended *model.Booking
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeWrite(caller, b); err != nil {
			return err
		}
		if b.Status.Terminal() {
			return fmt.Errorf("%w: only active or pending bookings can be extended", ErrInvalidState)
		}
		if !newEnd.After(b.EndTime) {
			return fmt.Errorf("%w: new end time must be after current end time", ErrInvalidInterval)
		}

		loc, err := tx.GetLocation(ctx, b.ParkingID)
		if err != nil {
			return err
		}
		if _, err := tx.LockOccupancy(ctx, b.ParkingID); err != nil {
			return err
		}
		if err := admit(ctx, tx, loc, b.StartTime, newEnd, b.ID); err != nil {
			return err
		}

		price := Price(loc.HourlyRate, b.StartTime, newEnd)
		if err := tx.TransitionBooking(ctx, b.ID, b.Status, b.Status, map[string]interface{}{
			"end_time":    newEnd,
			"total_price": price,
		}); err != nil {
			return err
		}

		b.EndTime = newEnd
		b.TotalPrice = price
		extended = b
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.emit(ctx, EventExtended, extended, extended.Status, extended.Status)
	return extended, nil
}

// ExpireNoShows cancels pending bookings whose end plus the grace period is
// at or before now. It returns how many were cancelled.
func (s *Service) ExpireNoShows(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := s.store.FindExpiredPending(ctx, now.Add(-s.noShowGrace), limit)
	if err != nil {
		return 0, err
	}

	pending := model.BookingPending
	count := 0
	for _, candidate := range expired {
		b, _, err := s.cancel(ctx, System, candidate.ID, &pending)
		if err != nil {
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
				// Checked in or cancelled since the scan.
				continue
			}
			return count, fmt.Errorf("failed to expire booking %s: %w", candidate.ID, err)
		}
		count++
		s.emit(ctx, EventExpired, b, model.BookingPending, model.BookingCancelled)
	}
	return count, nil
}

// ReconcileLedger recomputes a location's counters from its bookings and
// applies the difference through the ledger.
func (s *Service) ReconcileLedger(ctx context.Context, parkingID string) (store.Delta, error) {
	var applied store.Delta
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		loc, err := tx.GetLocation(ctx, parkingID)
		if err != nil {
			return err
		}
		occ, err := tx.LockOccupancy(ctx, parkingID)
		if err != nil {
			return err
		}
		counts, err := tx.CountByStatus(ctx, parkingID)
		if err != nil {
			return err
		}

		reserved, occupied := int(counts.Pending), int(counts.Active)
		available := loc.TotalCapacity - reserved - occupied
		if available < 0 {
			available = 0
		}
		d := store.Delta{
			Available: available - occ.Available,
			Occupied:  occupied - occ.Occupied,
			Reserved:  reserved - occ.Reserved,
		}
		if d.IsZero() {
			return nil
		}
		if err := tx.ApplyDelta(ctx, parkingID, d); err != nil {
			return err
		}
		applied = d
		return nil
	})
	if err != nil {
		return store.Delta{}, translate(err)
	}
	if !applied.IsZero() {
		log.Printf("Reconciled occupancy for %s: available %+d, occupied %+d, reserved %+d",
			parkingID, applied.Available, applied.Occupied, applied.Reserved)
		s.recorder.LedgerCorrected(parkingID, applied)
	}
	return applied, nil
}

// Occupancy returns a location's counters without taking any lock.
func (s *Service) Occupancy(ctx context.Context, parkingID string) (*model.Occupancy, error) {
	occ, err := s.store.GetOccupancy(ctx, parkingID)
	if err != nil {
		return nil, translate(err)
	}
	return occ, nil
}

func (s *Service) emit(ctx context.Context, kind EventKind, b *model.Booking, from, to model.BookingStatus) {
	if len(s.listeners) == 0 || b == nil {
		return
	}
	e := Event{
		Kind:      kind,
		BookingID: b.ID,
		ParkingID: b.ParkingID,
		UserID:    b.UserID,
		From:      from,
		To:        to,
		At:        s.clock(),
	}
	if occ, err := s.store.GetOccupancy(ctx, b.ParkingID); err == nil {
		e.Occupancy = occ
	} else {
		log.Printf("Warning: could not read occupancy for event on %s: %v", b.ParkingID, err)
	}
	for _, l := range s.listeners {
		l.BookingChanged(e)
	}
}

func normalizePlate(raw string) (null.String, error) {
	if raw == "" {
		return null.String{}, nil
	}
	p, err := parse.Plate(raw)
	if err != nil {
		return null.String{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return null.StringFrom(p), nil
}
