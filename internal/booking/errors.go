package booking

import (
	"context"
	"errors"
	"fmt"

	"parking-booking-backend/internal/store"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInterval   = errors.New("end time must be after start time")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCapacityExceeded  = errors.New("no spots available for this time slot")
	ErrInvalidState      = errors.New("booking is not in a valid state for this operation")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrForbidden         = errors.New("not authorized to access this booking")
	// ErrUnavailable means the outcome of the request is unknown to the
	// caller: the transaction was cut short or lost to contention.
	ErrUnavailable = errors.New("service temporarily unavailable")
)

// Retryable reports whether a caller may reasonably retry the same request.
func Retryable(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrUnavailable)
}

// translate maps storage failures onto the package's sentinels. Errors that
// already carry a sentinel pass through untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrStaleState):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	case errors.Is(err, store.ErrContention),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
