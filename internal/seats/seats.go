// Package seats is the seat-capacity ledger. Availability is always
// derived from the ride's passenger list, never tracked as a separate
// counter, so the ledger cannot drift from the confirmed passenger count.
package seats

import (
	"errors"
	"fmt"

	"github.com/example/ride-booking/internal/models"
)

// ErrNoSeatsAvailable means every seat is held by a confirmed passenger.
var ErrNoSeatsAvailable = errors.New("no seats available")

// InvariantViolationError indicates corrupted state: more confirmed
// passengers than seats. It is a bug, not a user error, and must surface
// loudly instead of being translated into a client message.
type InvariantViolationError struct {
	RideID     string
	TotalSeats int
	Confirmed  int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("seat invariant violated on ride %s: %d confirmed > %d total", e.RideID, e.Confirmed, e.TotalSeats)
}

// Confirmed counts passengers currently holding a seat.
func Confirmed(r *models.Ride) int {
	n := 0
	for _, p := range r.Passengers {
		if p.Status == models.RequestConfirmed {
			n++
		}
	}
	return n
}

// Available returns totalSeats minus confirmed passengers. A negative
// result is reported as an InvariantViolationError.
func Available(r *models.Ride) (int, error) {
	c := Confirmed(r)
	avail := r.TotalSeats - c
	if avail < 0 {
		return 0, &InvariantViolationError{RideID: r.ID, TotalSeats: r.TotalSeats, Confirmed: c}
	}
	return avail, nil
}

// TryReserve reports whether one more seat can be granted right now.
// The caller must hold the ride's lock and flip the request status within
// the same critical section; the check is only meaningful under that lock.
func TryReserve(r *models.Ride) error {
	avail, err := Available(r)
	if err != nil {
		return err
	}
	if avail == 0 {
		return ErrNoSeatsAvailable
	}
	return nil
}

// Release revalidates the ledger after a confirmed seat was given back.
// Because availability is recomputed from the passenger list there is no
// counter to increment, only the invariant to recheck.
func Release(r *models.Ride) error {
	_, err := Available(r)
	return err
}
