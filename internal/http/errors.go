package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/lifecycle"
	"github.com/example/ride-booking/internal/request"
	"github.com/example/ride-booking/internal/seats"
	"github.com/example/ride-booking/internal/storage"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Message: message})
}

// writeServiceError translates the engine's error taxonomy into a stable
// code plus HTTP status, so clients can distinguish "ride full" from
// "ride cancelled" from "already requested".
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "code", body.Error)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func classify(err error) (int, errorBody) {
	var invalidRide *booking.InvalidRideError
	var notRequestable *lifecycle.NotRequestableError
	var badReqTransition *request.InvalidTransitionError
	var badRideTransition *lifecycle.InvalidTransitionError
	var invariant *seats.InvariantViolationError

	switch {
	case errors.As(err, &invalidRide):
		return http.StatusBadRequest, errorBody{Error: "invalid_ride", Message: err.Error(), Reason: invalidRide.Reason}
	case errors.Is(err, booking.ErrInvalidDecision):
		return http.StatusBadRequest, errorBody{Error: "invalid_decision", Message: err.Error()}
	case errors.Is(err, booking.ErrSelfRequest):
		return http.StatusBadRequest, errorBody{Error: "self_request", Message: err.Error()}
	case errors.Is(err, booking.ErrDuplicateRequest):
		return http.StatusConflict, errorBody{Error: "duplicate_request", Message: err.Error()}
	case errors.As(err, &notRequestable):
		return http.StatusConflict, errorBody{Error: "ride_not_requestable", Message: err.Error(), Reason: string(notRequestable.Reason)}
	case errors.Is(err, seats.ErrNoSeatsAvailable):
		return http.StatusConflict, errorBody{Error: "no_seats_available", Message: err.Error()}
	case errors.Is(err, booking.ErrNotRideOwner), errors.Is(err, lifecycle.ErrNotCreator), errors.Is(err, request.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "not_ride_owner", Message: err.Error()}
	case errors.Is(err, booking.ErrRequestNotFound):
		return http.StatusNotFound, errorBody{Error: "request_not_found", Message: err.Error()}
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "ride_not_found", Message: err.Error()}
	case errors.Is(err, booking.ErrRequestNotPending):
		return http.StatusConflict, errorBody{Error: "request_not_pending", Message: err.Error()}
	case errors.Is(err, lifecycle.ErrNotDeparted):
		return http.StatusConflict, errorBody{Error: "ride_not_departed", Message: err.Error()}
	case errors.As(err, &badReqTransition), errors.As(err, &badRideTransition):
		return http.StatusConflict, errorBody{Error: "invalid_transition", Message: err.Error()}
	case errors.As(err, &invariant):
		return http.StatusInternalServerError, errorBody{Error: "invariant_violation", Message: "internal invariant violated"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal error"}
	}
}
