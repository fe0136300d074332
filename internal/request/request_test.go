package request

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/seats"
)

const (
	creator = "driver"
	rider   = "rider"
)

func fixture(reqStatus models.RequestStatus, totalSeats int) (*models.Ride, *models.PassengerRequest) {
	req := &models.PassengerRequest{UserID: rider, RideID: "r1", Status: reqStatus, RequestedAt: time.Now()}
	ride := &models.Ride{
		ID:         "r1",
		CreatorID:  creator,
		TotalSeats: totalSeats,
		Status:     models.RideActive,
		Passengers: []*models.PassengerRequest{req},
	}
	return ride, req
}

func TestConfirmByCreatorReservesSeat(t *testing.T) {
	ride, req := fixture(models.RequestPending, 1)
	now := time.Now()
	if err := Transition(ride, req, models.RequestConfirmed, creator, now); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if req.Status != models.RequestConfirmed {
		t.Fatalf("status = %s", req.Status)
	}
	if req.DecidedAt == nil || !req.DecidedAt.Equal(now) {
		t.Fatal("decidedAt must be stamped on leaving pending")
	}
}

func TestConfirmByNonCreatorForbidden(t *testing.T) {
	ride, req := fixture(models.RequestPending, 1)
	if err := Transition(ride, req, models.RequestConfirmed, rider, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if req.Status != models.RequestPending {
		t.Fatal("failed transition must not change state")
	}
}

func TestConfirmOnFullRideFails(t *testing.T) {
	ride, req := fixture(models.RequestPending, 1)
	ride.Passengers = append(ride.Passengers, &models.PassengerRequest{UserID: "other", RideID: "r1", Status: models.RequestConfirmed})
	err := Transition(ride, req, models.RequestConfirmed, creator, time.Now())
	if !errors.Is(err, seats.ErrNoSeatsAvailable) {
		t.Fatalf("expected ErrNoSeatsAvailable, got %v", err)
	}
	if req.Status != models.RequestPending {
		t.Fatal("request must stay pending when the seat check fails")
	}
}

func TestRejectByCreator(t *testing.T) {
	ride, req := fixture(models.RequestPending, 1)
	if err := Transition(ride, req, models.RequestRejected, creator, time.Now()); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if req.Status != models.RequestRejected || req.DecidedAt == nil {
		t.Fatalf("reject must set status and decidedAt, got %+v", req)
	}
}

func TestCancelPendingOnlyByRequester(t *testing.T) {
	ride, req := fixture(models.RequestPending, 1)
	if err := Transition(ride, req, models.RequestCancelled, creator, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("creator must not cancel a pending request, got %v", err)
	}
	if err := Transition(ride, req, models.RequestCancelled, rider, time.Now()); err != nil {
		t.Fatalf("requester cancel failed: %v", err)
	}
}

func TestCancelConfirmedByEitherSide(t *testing.T) {
	for _, actor := range []string{rider, creator} {
		ride, req := fixture(models.RequestConfirmed, 1)
		if err := Transition(ride, req, models.RequestCancelled, actor, time.Now()); err != nil {
			t.Fatalf("cancel by %s failed: %v", actor, err)
		}
	}
}

func TestTerminalStatesNeverMove(t *testing.T) {
	targets := []models.RequestStatus{models.RequestPending, models.RequestConfirmed, models.RequestRejected, models.RequestCancelled}
	for _, from := range []models.RequestStatus{models.RequestRejected, models.RequestCancelled} {
		for _, to := range targets {
			ride, req := fixture(from, 1)
			err := Transition(ride, req, to, creator, time.Now())
			var it *InvalidTransitionError
			if !errors.As(err, &it) {
				t.Fatalf("%s -> %s: expected InvalidTransitionError, got %v", from, to, err)
			}
			if it.From != from || it.To != to {
				t.Fatalf("error must identify both states, got %+v", it)
			}
			if req.Status != from {
				t.Fatalf("%s -> %s changed state", from, to)
			}
		}
	}
}

func TestConfirmedToConfirmedInvalid(t *testing.T) {
	ride, req := fixture(models.RequestConfirmed, 1)
	var it *InvalidTransitionError
	if err := Transition(ride, req, models.RequestConfirmed, creator, time.Now()); !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}
