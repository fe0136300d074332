package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfRequest: a driver asked for a seat on their own ride.
	ErrSelfRequest = errors.New("cannot request a seat on your own ride")
	// ErrDuplicateRequest: the user already holds a pending or confirmed
	// request on this ride.
	ErrDuplicateRequest = errors.New("an active request for this ride already exists")
	// ErrNotRideOwner: a decision was attempted by someone other than the
	// ride's creator.
	ErrNotRideOwner = errors.New("only the ride creator may decide requests")
	// ErrRequestNotFound: no request by that user exists on the ride.
	ErrRequestNotFound = errors.New("passenger request not found")
	// ErrRequestNotPending: the request exists but already left pending.
	ErrRequestNotPending = errors.New("passenger request is not pending")
	// ErrInvalidDecision: decideRequest accepts only confirmed or rejected.
	ErrInvalidDecision = errors.New("decision must be confirmed or rejected")
)

// InvalidRideError rejects a createRide call, naming the field that failed.
type InvalidRideError struct {
	Reason string
}

func (e *InvalidRideError) Error() string {
	return fmt.Sprintf("invalid ride: %s", e.Reason)
}
