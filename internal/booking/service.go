// Package booking is the engine's command surface: ride creation, seat
// requests, approvals and cancellations. Every mutation runs inside its
// ride's critical section; persistence, events, notifications and payment
// holds are dispatched only after the mutation commits.
package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/events"
	"github.com/example/ride-booking/internal/lifecycle"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/request"
	"github.com/example/ride-booking/internal/seats"
	"github.com/example/ride-booking/internal/storage"
)

// SeatHolder places and settles payment holds for confirmed seats.
type SeatHolder interface {
	HoldSeat(ctx context.Context, riderID string, price float64) (string, error)
	Capture(ctx context.Context, holdID string) error
	Release(ctx context.Context, holdID string) error
}

// RideIndex mirrors requestable rides into the match candidate index.
type RideIndex interface {
	Add(ctx context.Context, rideID string, pickup models.Coord) error
	Remove(ctx context.Context, rideID string) error
}

type Service struct {
	Store    storage.RideStore
	Archive  storage.Archiver  // optional write-through persistence
	Events   events.Publisher  // optional transition event stream
	Dispatch dispatch.Notifier // optional direct user notification
	Payments SeatHolder        // optional seat payment holds
	Index    RideIndex         // optional match candidate index
	Logger   *slog.Logger

	Now   func() time.Time // test hook, defaults to time.Now
	NewID func() string    // test hook, defaults to random hex

	holdsMu sync.Mutex
	holds   map[string]string // rideID/userID -> payment hold ID
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

type CreateRideInput struct {
	Pickup        models.Location
	Dropoff       models.Location
	DepartureTime time.Time
	TotalSeats    int
	Price         float64
	Vehicle       models.Vehicle
	Preferences   models.Preferences
}

// CreateRide publishes a new active ride owned by creatorID.
func (s *Service) CreateRide(ctx context.Context, creatorID string, in CreateRideInput) (*models.Ride, error) {
	now := s.now()
	if in.TotalSeats < 1 {
		return nil, &InvalidRideError{Reason: "total seats must be at least 1"}
	}
	if in.Price < 0 {
		return nil, &InvalidRideError{Reason: "price must not be negative"}
	}
	if !in.DepartureTime.After(now) {
		return nil, &InvalidRideError{Reason: "departure time must be in the future"}
	}
	if in.Preferences.Gender == "" {
		in.Preferences.Gender = models.GenderAny
	}

	ride := &models.Ride{
		ID:            s.newID(),
		CreatorID:     creatorID,
		Pickup:        in.Pickup,
		Dropoff:       in.Dropoff,
		DepartureTime: in.DepartureTime,
		TotalSeats:    in.TotalSeats,
		Price:         in.Price,
		Vehicle:       in.Vehicle,
		Preferences:   in.Preferences,
		Status:        models.RideActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Create(ride); err != nil {
		return nil, err
	}

	observability.RidesCreatedTotal.Inc()
	observability.RidesActive.Inc()
	s.archive(ctx, ride)
	if s.Index != nil {
		if err := s.Index.Add(ctx, ride.ID, ride.Pickup.Coord); err != nil {
			s.log().Warn("ride index add failed", "ride_id", ride.ID, "error", err)
		}
	}
	s.log().Info("ride created", "ride_id", ride.ID, "creator_id", creatorID, "seats", ride.TotalSeats)
	return ride.Clone(), nil
}

// RequestRide creates a pending passenger request for userID on rideID.
func (s *Service) RequestRide(ctx context.Context, userID, rideID string) (*models.PassengerRequest, error) {
	now := s.now()
	snap, err := s.Store.Mutate(rideID, func(ride *models.Ride) error {
		if userID == ride.CreatorID {
			return ErrSelfRequest
		}
		if ride.ActiveRequest(userID) != nil {
			return ErrDuplicateRequest
		}
		if err := lifecycle.CheckRequestable(ride, now); err != nil {
			return err
		}
		ride.Passengers = append(ride.Passengers, &models.PassengerRequest{
			UserID:      userID,
			RideID:      ride.ID,
			Status:      models.RequestPending,
			RequestedAt: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RequestsTotal.Inc()
	s.archive(ctx, snap)
	s.emit(ctx, events.Event{
		Type:    events.RequestCreated,
		RideID:  rideID,
		UserID:  snap.CreatorID,
		ActorID: userID,
		Status:  string(models.RequestPending),
		At:      now,
	})
	return snap.Request(userID), nil
}

// DecideRequest confirms or rejects a pending request. Confirmation
// reserves a seat; with one seat left, concurrent confirmations are
// serialized by the ride's lock and the loser gets NoSeatsAvailable while
// its request stays pending.
func (s *Service) DecideRequest(ctx context.Context, creatorID, rideID, requesterID string, decision models.RequestStatus) (*models.PassengerRequest, error) {
	if decision != models.RequestConfirmed && decision != models.RequestRejected {
		return nil, ErrInvalidDecision
	}
	now := s.now()
	snap, err := s.Store.Mutate(rideID, func(ride *models.Ride) error {
		if creatorID != ride.CreatorID {
			return ErrNotRideOwner
		}
		req := ride.Request(requesterID)
		if req == nil {
			return ErrRequestNotFound
		}
		if req.Status != models.RequestPending {
			return ErrRequestNotPending
		}
		return request.Transition(ride, req, decision, creatorID, now)
	})
	if err != nil {
		if errors.Is(err, seats.ErrNoSeatsAvailable) {
			observability.SeatConflictsTotal.Inc()
		}
		var iv *seats.InvariantViolationError
		if errors.As(err, &iv) {
			s.log().Error("seat invariant violated", "ride_id", rideID, "error", err)
		}
		return nil, err
	}

	observability.DecisionsTotal.WithLabelValues(string(decision)).Inc()
	s.archive(ctx, snap)
	s.emit(ctx, events.Event{
		Type:    events.RequestDecided,
		RideID:  rideID,
		UserID:  requesterID,
		ActorID: creatorID,
		Status:  string(decision),
		At:      now,
	})
	if decision == models.RequestConfirmed && s.Payments != nil {
		if holdID, err := s.Payments.HoldSeat(ctx, requesterID, snap.Price); err != nil {
			s.log().Warn("seat payment hold failed", "ride_id", rideID, "user_id", requesterID, "error", err)
		} else {
			s.rememberHold(rideID, requesterID, holdID)
		}
	}
	return snap.Request(requesterID), nil
}

// CancelRequest withdraws the caller's own request. Cancelling an already
// terminal request fails with InvalidTransition and changes nothing.
func (s *Service) CancelRequest(ctx context.Context, userID, rideID string) (*models.PassengerRequest, error) {
	now := s.now()
	wasConfirmed := false
	snap, err := s.Store.Mutate(rideID, func(ride *models.Ride) error {
		req := ride.Request(userID)
		if req == nil {
			return ErrRequestNotFound
		}
		wasConfirmed = req.Status == models.RequestConfirmed
		return request.Transition(ride, req, models.RequestCancelled, userID, now)
	})
	if err != nil {
		return nil, err
	}

	s.archive(ctx, snap)
	s.emit(ctx, events.Event{
		Type:    events.RequestCancelled,
		RideID:  rideID,
		UserID:  snap.CreatorID,
		ActorID: userID,
		Status:  string(models.RequestCancelled),
		At:      now,
	})
	if wasConfirmed {
		s.settleHold(ctx, rideID, userID, false)
	}
	return snap.Request(userID), nil
}

// CancelRide cancels an active ride. Pending and confirmed requests are
// cancelled in the same critical section, and every affected passenger is
// queued for notification.
func (s *Service) CancelRide(ctx context.Context, creatorID, rideID string) (*models.Ride, error) {
	now := s.now()
	var affected []string
	var hadHold []string
	snap, err := s.Store.Mutate(rideID, func(ride *models.Ride) error {
		for _, p := range ride.Passengers {
			if p.Status == models.RequestConfirmed {
				hadHold = append(hadHold, p.UserID)
			}
		}
		changed, err := lifecycle.Cancel(ride, creatorID, now)
		if err != nil {
			hadHold = nil
			return err
		}
		for _, p := range changed {
			affected = append(affected, p.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RidesActive.Dec()
	s.archive(ctx, snap)
	s.removeFromIndex(ctx, rideID)
	for _, userID := range affected {
		s.emit(ctx, events.Event{
			Type:    events.RideCancelled,
			RideID:  rideID,
			UserID:  userID,
			ActorID: creatorID,
			Status:  string(models.RideCancelled),
			At:      now,
		})
	}
	for _, userID := range hadHold {
		s.settleHold(ctx, rideID, userID, false)
	}
	s.log().Info("ride cancelled", "ride_id", rideID, "passengers_notified", len(affected))
	return snap, nil
}

// CompleteRide closes out a departed ride. Remaining pending requests are
// rejected; confirmed seats have their payment holds captured.
func (s *Service) CompleteRide(ctx context.Context, creatorID, rideID string) (*models.Ride, error) {
	now := s.now()
	var rejected []string
	var confirmed []string
	snap, err := s.Store.Mutate(rideID, func(ride *models.Ride) error {
		changed, err := lifecycle.Complete(ride, creatorID, now)
		if err != nil {
			return err
		}
		for _, p := range changed {
			rejected = append(rejected, p.UserID)
		}
		for _, p := range ride.Passengers {
			if p.Status == models.RequestConfirmed {
				confirmed = append(confirmed, p.UserID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RidesActive.Dec()
	s.archive(ctx, snap)
	s.removeFromIndex(ctx, rideID)
	for _, userID := range append(append([]string{}, rejected...), confirmed...) {
		s.emit(ctx, events.Event{
			Type:    events.RideCompleted,
			RideID:  rideID,
			UserID:  userID,
			ActorID: creatorID,
			Status:  string(models.RideCompleted),
			At:      now,
		})
	}
	for _, userID := range confirmed {
		s.settleHold(ctx, rideID, userID, true)
	}
	s.log().Info("ride completed", "ride_id", rideID, "confirmed", len(confirmed), "rejected_pending", len(rejected))
	return snap, nil
}

// archive writes committed state through to durable storage, best effort.
func (s *Service) archive(ctx context.Context, ride *models.Ride) {
	if s.Archive == nil {
		return
	}
	if err := s.Archive.SaveRide(ctx, ride); err != nil {
		s.log().Warn("archive write failed", "ride_id", ride.ID, "error", err)
	}
}

// emit publishes a transition event and pushes it to the counterparty's
// live session if one exists. Neither failure rolls anything back.
func (s *Service) emit(ctx context.Context, ev events.Event) {
	if s.Events != nil {
		if err := s.Events.Publish(ctx, ev); err != nil {
			s.log().Warn("event publish failed", "type", string(ev.Type), "ride_id", ev.RideID, "error", err)
		}
	}
	if s.Dispatch != nil && ev.UserID != "" {
		_ = s.Dispatch.Notify(ev.UserID, ev)
	}
}

func (s *Service) removeFromIndex(ctx context.Context, rideID string) {
	if s.Index == nil {
		return
	}
	if err := s.Index.Remove(ctx, rideID); err != nil {
		s.log().Warn("ride index remove failed", "ride_id", rideID, "error", err)
	}
}

func (s *Service) rememberHold(rideID, userID, holdID string) {
	s.holdsMu.Lock()
	defer s.holdsMu.Unlock()
	if s.holds == nil {
		s.holds = make(map[string]string)
	}
	s.holds[rideID+"/"+userID] = holdID
}

// settleHold captures or releases the payment hold for one confirmed seat.
func (s *Service) settleHold(ctx context.Context, rideID, userID string, capture bool) {
	if s.Payments == nil {
		return
	}
	s.holdsMu.Lock()
	holdID, ok := s.holds[rideID+"/"+userID]
	if ok {
		delete(s.holds, rideID+"/"+userID)
	}
	s.holdsMu.Unlock()
	if !ok {
		return
	}
	var err error
	if capture {
		err = s.Payments.Capture(ctx, holdID)
	} else {
		err = s.Payments.Release(ctx, holdID)
	}
	if err != nil {
		s.log().Warn("payment hold settlement failed", "ride_id", rideID, "user_id", userID, "capture", capture, "error", err)
	}
}
