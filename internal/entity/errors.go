package entity

import (
	"errors"
	"fmt"
)

// Error families. Every concrete error below wraps exactly one of them,
// so callers can branch with errors.Is on either level.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrAccessDenied     = errors.New("access denied")
	ErrStoreUnavailable = errors.New("store unavailable")
)

var (
	// Not found
	ErrAttractionNotFound = fmt.Errorf("attraction %w", ErrNotFound)
	ErrGuideNotFound      = fmt.Errorf("guide %w", ErrNotFound)
	ErrBookingNotFound    = fmt.Errorf("booking %w", ErrNotFound)
	ErrItineraryNotFound  = fmt.Errorf("itinerary %w", ErrNotFound)

	// Booking conflicts
	ErrAttractionGuideMismatch    = fmt.Errorf("%w: attraction is not available with the selected guide", ErrConflict)
	ErrDateNotOfferedByAttraction = fmt.Errorf("%w: attraction is not available on this date", ErrConflict)
	ErrInsufficientCapacity       = fmt.Errorf("%w: insufficient capacity", ErrConflict)
	ErrAlreadyCancelled           = fmt.Errorf("%w: booking is already cancelled", ErrConflict)
	ErrCannotCancelCompleted      = fmt.Errorf("%w: cannot cancel a completed booking", ErrConflict)
	ErrInvalidStatusTransition    = fmt.Errorf("%w: invalid booking status transition", ErrConflict)
	ErrCancellationWindowClosed   = fmt.Errorf("%w: confirmed booking date has passed", ErrConflict)
	ErrCapacityBelowBooked        = fmt.Errorf("%w: total slots below already booked party size", ErrConflict)
	ErrConcurrentUpdate           = fmt.Errorf("%w: concurrent update detected", ErrConflict)

	// Itinerary conflicts
	ErrDateRangeConflict = fmt.Errorf("%w: itinerary dates overlap with an existing itinerary", ErrConflict)
)

// CapacityError is returned when admission is rejected for lack of slots.
// It reports what was left at the moment of rejection.
type CapacityError struct {
	Remaining int `json:"available_slots"`
	Requested int `json:"requested_slots"`
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("only %d slot(s) available, requested %d", e.Remaining, e.Requested)
}

func (e *CapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// InvalidRequest builds an ErrInvalidRequest with details.
func InvalidRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// StoreError marks a persistence failure so it surfaces as ErrStoreUnavailable.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
