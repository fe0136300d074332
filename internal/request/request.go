// Package request is the passenger-request state machine:
// pending -> confirmed | rejected | cancelled, plus confirmed -> cancelled.
// All other transitions are invalid, and terminal states never move again.
package request

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/seats"
)

// ErrForbidden means the acting user is not allowed to perform this
// transition (wrong side of the requester/creator split).
var ErrForbidden = errors.New("actor may not perform this transition")

// InvalidTransitionError reports an attempted move the state machine does
// not define, carrying both endpoints so the caller can explain it.
type InvalidTransitionError struct {
	From models.RequestStatus
	To   models.RequestStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid request transition %s -> %s", e.From, e.To)
}

// Transition moves req to the target status on behalf of actorID, applying
// the seat ledger where the move grants or returns a seat. The caller must
// hold the ride's lock: the seat check and the status write here form the
// critical section described by the booking service.
func Transition(ride *models.Ride, req *models.PassengerRequest, to models.RequestStatus, actorID string, now time.Time) error {
	from := req.Status
	switch {
	case from == models.RequestPending && to == models.RequestConfirmed:
		if actorID != ride.CreatorID {
			return ErrForbidden
		}
		if err := seats.TryReserve(ride); err != nil {
			return err
		}
	case from == models.RequestPending && to == models.RequestRejected:
		if actorID != ride.CreatorID {
			return ErrForbidden
		}
	case from == models.RequestPending && to == models.RequestCancelled:
		if actorID != req.UserID {
			return ErrForbidden
		}
	case from == models.RequestConfirmed && to == models.RequestCancelled:
		if actorID != req.UserID && actorID != ride.CreatorID {
			return ErrForbidden
		}
	default:
		return &InvalidTransitionError{From: from, To: to}
	}

	req.Status = to
	if from == models.RequestPending {
		t := now
		req.DecidedAt = &t
	}
	if from == models.RequestConfirmed && to == models.RequestCancelled {
		if err := seats.Release(ride); err != nil {
			return err
		}
	}
	return nil
}
