package booking

import (
	"sort"

	"github.com/example/ride-booking/internal/models"
)

// ListFilter narrows ListRides. Zero value means every ride.
type ListFilter struct {
	CreatorID   string // rides published by this driver
	RequesterID string // rides this user has requested (any status)
	ActiveOnly  bool
}

// RequestWithRide pairs a user's request with a snapshot of its ride.
type RequestWithRide struct {
	Request *models.PassengerRequest `json:"request"`
	Ride    *models.Ride             `json:"ride"`
}

// GetRide returns a snapshot of one ride including its passenger list.
func (s *Service) GetRide(rideID string) (*models.Ride, error) {
	return s.Store.Get(rideID)
}

// ListRides returns matching ride snapshots ordered by departure time then
// ID, so paging through the same state is stable.
func (s *Service) ListRides(f ListFilter) []*models.Ride {
	all := s.Store.List()
	out := make([]*models.Ride, 0, len(all))
	for _, ride := range all {
		if f.CreatorID != "" && ride.CreatorID != f.CreatorID {
			continue
		}
		if f.RequesterID != "" && ride.Request(f.RequesterID) == nil {
			continue
		}
		if f.ActiveOnly && ride.Status != models.RideActive {
			continue
		}
		out = append(out, ride)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepartureTime.Equal(out[j].DepartureTime) {
			return out[i].DepartureTime.Before(out[j].DepartureTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MyRequests returns every request the user has made across all rides,
// newest first.
func (s *Service) MyRequests(userID string) []RequestWithRide {
	var out []RequestWithRide
	for _, ride := range s.Store.List() {
		for _, p := range ride.Passengers {
			if p.UserID == userID {
				out = append(out, RequestWithRide{Request: p, Ride: ride})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Request.RequestedAt.Equal(out[j].Request.RequestedAt) {
			return out[i].Request.RequestedAt.After(out[j].Request.RequestedAt)
		}
		return out[i].Ride.ID < out[j].Ride.ID
	})
	return out
}
