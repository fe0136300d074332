package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/events"
	"github.com/example/ride-booking/internal/lifecycle"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/request"
	"github.com/example/ride-booking/internal/seats"
	"github.com/example/ride-booking/internal/storage"
)

var baseTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeEvents struct {
	mu  sync.Mutex
	evs []events.Event
}

func (f *fakeEvents) Publish(ctx context.Context, ev events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evs = append(f.evs, ev)
	return nil
}

func (f *fakeEvents) ofType(t events.Type) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, ev := range f.evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakePayments struct {
	mu       sync.Mutex
	next     int
	held     map[string]string // holdID -> riderID
	captured []string
	released []string
}

func (f *fakePayments) HoldSeat(ctx context.Context, riderID string, price float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = make(map[string]string)
	}
	f.next++
	id := fmt.Sprintf("hold-%d", f.next)
	f.held[id] = riderID
	return id, nil
}

func (f *fakePayments) Capture(ctx context.Context, holdID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured = append(f.captured, holdID)
	return nil
}

func (f *fakePayments) Release(ctx context.Context, holdID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, holdID)
	return nil
}

type env struct {
	svc      *Service
	events   *fakeEvents
	payments *fakePayments
	now      time.Time
}

func newEnv() *env {
	e := &env{events: &fakeEvents{}, payments: &fakePayments{}, now: baseTime}
	n := 0
	e.svc = &Service{
		Store:    storage.NewMemoryStore(),
		Events:   e.events,
		Payments: e.payments,
		Now:      func() time.Time { return e.now },
		NewID:    func() string { n++; return fmt.Sprintf("ride-%d", n) },
	}
	return e
}

func (e *env) createRide(t *testing.T, creator string, seats int) *models.Ride {
	t.Helper()
	ride, err := e.svc.CreateRide(context.Background(), creator, CreateRideInput{
		Pickup:        models.Location{Coord: models.Coord{Lat: 0, Lon: 0}},
		Dropoff:       models.Location{Coord: models.Coord{Lat: 1, Lon: 0}},
		DepartureTime: e.now.Add(time.Hour),
		TotalSeats:    seats,
		Price:         12.50,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func TestCreateRideValidation(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	cases := []struct {
		name string
		in   CreateRideInput
	}{
		{"no seats", CreateRideInput{DepartureTime: e.now.Add(time.Hour), TotalSeats: 0}},
		{"negative price", CreateRideInput{DepartureTime: e.now.Add(time.Hour), TotalSeats: 2, Price: -1}},
		{"past departure", CreateRideInput{DepartureTime: e.now.Add(-time.Minute), TotalSeats: 2}},
	}
	for _, tc := range cases {
		_, err := e.svc.CreateRide(ctx, "driver", tc.in)
		var ir *InvalidRideError
		if !errors.As(err, &ir) {
			t.Fatalf("%s: expected InvalidRideError, got %v", tc.name, err)
		}
	}
}

func TestRequestRoundTrip(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 2)

	req, err := e.svc.RequestRide(context.Background(), "rider", ride.ID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if req.Status != models.RequestPending {
		t.Fatalf("status = %s", req.Status)
	}

	snap, _ := e.svc.GetRide(ride.ID)
	if len(snap.Passengers) != 1 || snap.Passengers[0].UserID != "rider" {
		t.Fatalf("exactly one pending request must be visible, got %+v", snap.Passengers)
	}
}

func TestSelfRequestAlwaysFails(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 5)
	if _, err := e.svc.RequestRide(context.Background(), "driver", ride.ID); !errors.Is(err, ErrSelfRequest) {
		t.Fatalf("expected ErrSelfRequest, got %v", err)
	}
}

func TestDuplicateRequest(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 2)
	ctx := context.Background()
	if _, err := e.svc.RequestRide(ctx, "rider", ride.ID); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := e.svc.RequestRide(ctx, "rider", ride.ID); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestRequestAfterDeparture(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 2)
	e.now = e.now.Add(2 * time.Hour)
	_, err := e.svc.RequestRide(context.Background(), "rider", ride.ID)
	var nr *lifecycle.NotRequestableError
	if !errors.As(err, &nr) || nr.Reason != lifecycle.ReasonDeparted {
		t.Fatalf("expected departed reason, got %v", err)
	}
}

func TestRequestOnFullRide(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 1)
	ctx := context.Background()
	_, _ = e.svc.RequestRide(ctx, "r1", ride.ID)
	if _, err := e.svc.DecideRequest(ctx, "driver", ride.ID, "r1", models.RequestConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	_, err := e.svc.RequestRide(ctx, "r2", ride.ID)
	var nr *lifecycle.NotRequestableError
	if !errors.As(err, &nr) || nr.Reason != lifecycle.ReasonFull {
		t.Fatalf("expected full reason, got %v", err)
	}
}

func TestDecideGuards(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 2)
	ctx := context.Background()
	_, _ = e.svc.RequestRide(ctx, "rider", ride.ID)

	if _, err := e.svc.DecideRequest(ctx, "stranger", ride.ID, "rider", models.RequestConfirmed); !errors.Is(err, ErrNotRideOwner) {
		t.Fatalf("expected ErrNotRideOwner, got %v", err)
	}
	if _, err := e.svc.DecideRequest(ctx, "driver", ride.ID, "ghost", models.RequestConfirmed); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if _, err := e.svc.DecideRequest(ctx, "driver", ride.ID, "rider", models.RequestCancelled); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
	if _, err := e.svc.DecideRequest(ctx, "driver", ride.ID, "rider", models.RequestRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := e.svc.DecideRequest(ctx, "driver", ride.ID, "rider", models.RequestConfirmed); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected ErrRequestNotPending, got %v", err)
	}
}

func TestDecideEmitsEventAndHold(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 2)
	ctx := context.Background()
	_, _ = e.svc.RequestRide(ctx, "rider", ride.ID)
	if _, err := e.svc.DecideRequest(ctx, "driver", ride.ID, "rider", models.RequestConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	decided := e.events.ofType(events.RequestDecided)
	if len(decided) != 1 || decided[0].UserID != "rider" || decided[0].Status != "confirmed" {
		t.Fatalf("expected one RequestDecided for the rider, got %+v", decided)
	}
	if len(e.payments.held) != 1 {
		t.Fatalf("expected one payment hold, got %d", len(e.payments.held))
	}
}

// Two riders race for the single seat: exactly one confirmation must win,
// the loser fails NoSeatsAvailable and stays pending.
func TestConcurrentConfirmationsLastSeat(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 1)
	ctx := context.Background()
	if _, err := e.svc.RequestRide(ctx, "alice", ride.ID); err != nil {
		t.Fatalf("alice request: %v", err)
	}
	if _, err := e.svc.RequestRide(ctx, "bob", ride.ID); err != nil {
		t.Fatalf("bob request: %v", err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i, rider := range []string{"alice", "bob"} {
		go func(i int, rider string) {
			defer wg.Done()
			_, errs[i] = e.svc.DecideRequest(ctx, "driver", ride.ID, rider, models.RequestConfirmed)
		}(i, rider)
	}
	wg.Wait()

	var okCount, fullCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, seats.ErrNoSeatsAvailable):
			fullCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || fullCount != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d full=%d", okCount, fullCount)
	}

	snap, _ := e.svc.GetRide(ride.ID)
	confirmed, pending := 0, 0
	for _, p := range snap.Passengers {
		switch p.Status {
		case models.RequestConfirmed:
			confirmed++
		case models.RequestPending:
			pending++
		}
	}
	if confirmed != 1 || pending != 1 {
		t.Fatalf("expected 1 confirmed + 1 still pending, got confirmed=%d pending=%d", confirmed, pending)
	}
}

func TestCancelRequestIdempotence(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 2)
	ctx := context.Background()
	_, _ = e.svc.RequestRide(ctx, "rider", ride.ID)
	if _, err := e.svc.CancelRequest(ctx, "rider", ride.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	_, err := e.svc.CancelRequest(ctx, "rider", ride.ID)
	var it *request.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("second cancel must fail with InvalidTransitionError, got %v", err)
	}
	snap, _ := e.svc.GetRide(ride.ID)
	if snap.Passengers[0].Status != models.RequestCancelled {
		t.Fatal("second cancel must not change state")
	}
}

func TestCancelConfirmedReleasesHold(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 2)
	ctx := context.Background()
	_, _ = e.svc.RequestRide(ctx, "rider", ride.ID)
	_, _ = e.svc.DecideRequest(ctx, "driver", ride.ID, "rider", models.RequestConfirmed)

	if _, err := e.svc.CancelRequest(ctx, "rider", ride.ID); err != nil {
		t.Fatalf("cancel confirmed: %v", err)
	}
	if len(e.payments.released) != 1 {
		t.Fatalf("expected the hold to be released, got %v", e.payments.released)
	}
	snap, _ := e.svc.GetRide(ride.ID)
	if got, _ := seats.Available(snap); got != 2 {
		t.Fatalf("seat must be free again, got %d available", got)
	}
}

// Cancelling a ride with two confirmed passengers cancels both and leaves
// nobody confirmed.
func TestCancelRideCascade(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 3)
	ctx := context.Background()
	for _, rider := range []string{"alice", "bob"} {
		_, _ = e.svc.RequestRide(ctx, rider, ride.ID)
		if _, err := e.svc.DecideRequest(ctx, "driver", ride.ID, rider, models.RequestConfirmed); err != nil {
			t.Fatalf("confirm %s: %v", rider, err)
		}
	}

	snap, err := e.svc.CancelRide(ctx, "driver", ride.ID)
	if err != nil {
		t.Fatalf("cancel ride: %v", err)
	}
	if snap.Status != models.RideCancelled {
		t.Fatalf("status = %s", snap.Status)
	}
	for _, p := range snap.Passengers {
		if p.Status != models.RequestCancelled {
			t.Fatalf("passenger %s left %s", p.UserID, p.Status)
		}
	}
	if got := len(e.events.ofType(events.RideCancelled)); got != 2 {
		t.Fatalf("both passengers must be queued for notification, got %d events", got)
	}
	if len(e.payments.released) != 2 {
		t.Fatalf("both holds must be released, got %d", len(e.payments.released))
	}
}

func TestCompleteRideCapturesAndRejects(t *testing.T) {
	e := newEnv()
	ride := e.createRide(t, "driver", 3)
	ctx := context.Background()
	_, _ = e.svc.RequestRide(ctx, "alice", ride.ID)
	_, _ = e.svc.DecideRequest(ctx, "driver", ride.ID, "alice", models.RequestConfirmed)
	_, _ = e.svc.RequestRide(ctx, "bob", ride.ID)

	if _, err := e.svc.CompleteRide(ctx, "driver", ride.ID); !errors.Is(err, lifecycle.ErrNotDeparted) {
		t.Fatalf("completion before departure must fail, got %v", err)
	}

	e.now = e.now.Add(2 * time.Hour)
	snap, err := e.svc.CompleteRide(ctx, "driver", ride.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if snap.Status != models.RideCompleted {
		t.Fatalf("status = %s", snap.Status)
	}
	if snap.Request("bob").Status != models.RequestRejected {
		t.Fatal("pending request must be auto-rejected on completion")
	}
	if snap.Request("alice").Status != models.RequestConfirmed {
		t.Fatal("confirmed passenger must survive completion")
	}
	if len(e.payments.captured) != 1 {
		t.Fatalf("expected one captured hold, got %d", len(e.payments.captured))
	}
}

func TestListRidesAndMyRequests(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	r1 := e.createRide(t, "driver1", 2)
	r2 := e.createRide(t, "driver2", 2)
	_, _ = e.svc.RequestRide(ctx, "rider", r1.ID)
	_, _ = e.svc.RequestRide(ctx, "rider", r2.ID)
	if _, err := e.svc.CancelRide(ctx, "driver2", r2.ID); err != nil {
		t.Fatalf("cancel r2: %v", err)
	}

	mine := e.svc.ListRides(ListFilter{CreatorID: "driver1"})
	if len(mine) != 1 || mine[0].ID != r1.ID {
		t.Fatalf("creator filter broken: %+v", mine)
	}
	active := e.svc.ListRides(ListFilter{ActiveOnly: true})
	if len(active) != 1 || active[0].ID != r1.ID {
		t.Fatalf("active filter broken: %+v", active)
	}
	requested := e.svc.ListRides(ListFilter{RequesterID: "rider"})
	if len(requested) != 2 {
		t.Fatalf("requester filter broken: %d", len(requested))
	}

	reqs := e.svc.MyRequests("rider")
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	// the request cancelled by the ride cascade is still listed
	var sawCancelled bool
	for _, rr := range reqs {
		if rr.Ride.ID == r2.ID && rr.Request.Status == models.RequestCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Fatal("cascaded cancellation must be visible in MyRequests")
	}
}
