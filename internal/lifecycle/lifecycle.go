// Package lifecycle governs a ride's own state: active -> completed |
// cancelled, both terminal, plus the guard deciding whether a ride still
// accepts passenger requests.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/seats"
)

// ErrNotCreator means someone other than the ride's driver tried to move
// the ride through its lifecycle.
var ErrNotCreator = errors.New("only the ride creator may do this")

// ErrNotDeparted means completion was requested before departure time.
var ErrNotDeparted = errors.New("ride has not departed yet")

// InvalidTransitionError reports a ride-status move that is not defined.
type InvalidTransitionError struct {
	From models.RideStatus
	To   models.RideStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid ride transition %s -> %s", e.From, e.To)
}

// NotRequestableReason distinguishes why a ride refuses new requests, so
// the caller can render "full" differently from "cancelled".
type NotRequestableReason string

const (
	ReasonDeparted  NotRequestableReason = "departed"
	ReasonFull      NotRequestableReason = "full"
	ReasonCancelled NotRequestableReason = "cancelled"
	ReasonCompleted NotRequestableReason = "completed"
)

type NotRequestableError struct {
	Reason NotRequestableReason
}

func (e *NotRequestableError) Error() string {
	return fmt.Sprintf("ride not requestable: %s", e.Reason)
}

// CheckRequestable reports whether the ride may accept a new passenger
// request right now: it must be active, not yet departed, and have a free
// seat.
func CheckRequestable(ride *models.Ride, now time.Time) error {
	switch ride.Status {
	case models.RideCancelled:
		return &NotRequestableError{Reason: ReasonCancelled}
	case models.RideCompleted:
		return &NotRequestableError{Reason: ReasonCompleted}
	}
	if !now.Before(ride.DepartureTime) {
		return &NotRequestableError{Reason: ReasonDeparted}
	}
	avail, err := seats.Available(ride)
	if err != nil {
		return err
	}
	if avail == 0 {
		return &NotRequestableError{Reason: ReasonFull}
	}
	return nil
}

// Complete moves an active, already-departed ride to completed. Remaining
// pending requests are rejected in the same mutation: a departed ride can
// never gain new confirmed passengers. Returns the requests it changed.
func Complete(ride *models.Ride, actorID string, now time.Time) ([]*models.PassengerRequest, error) {
	if actorID != ride.CreatorID {
		return nil, ErrNotCreator
	}
	if ride.Status != models.RideActive {
		return nil, &InvalidTransitionError{From: ride.Status, To: models.RideCompleted}
	}
	if now.Before(ride.DepartureTime) {
		return nil, ErrNotDeparted
	}
	ride.Status = models.RideCompleted
	var affected []*models.PassengerRequest
	for _, p := range ride.Passengers {
		if p.Status == models.RequestPending {
			p.Status = models.RequestRejected
			t := now
			p.DecidedAt = &t
			affected = append(affected, p)
		}
	}
	return affected, nil
}

// Cancel moves an active ride to cancelled at any time before or after
// departure. Every pending and confirmed request is cancelled with it;
// the cascade is applied inside the same critical section so no passenger
// is ever left confirmed on a cancelled ride.
func Cancel(ride *models.Ride, actorID string, now time.Time) ([]*models.PassengerRequest, error) {
	if actorID != ride.CreatorID {
		return nil, ErrNotCreator
	}
	if ride.Status != models.RideActive {
		return nil, &InvalidTransitionError{From: ride.Status, To: models.RideCancelled}
	}
	ride.Status = models.RideCancelled
	var affected []*models.PassengerRequest
	for _, p := range ride.Passengers {
		switch p.Status {
		case models.RequestPending, models.RequestConfirmed:
			wasPending := p.Status == models.RequestPending
			p.Status = models.RequestCancelled
			if wasPending {
				t := now
				p.DecidedAt = &t
			}
			affected = append(affected, p)
		}
	}
	return affected, nil
}
