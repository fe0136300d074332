package matching

import (
	"context"
	"sort"
	"time"

	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/seats"
	"github.com/example/ride-booking/internal/storage"
)

// CandidateIndex narrows the candidate set before scoring. Optional; with
// no index the service scans every ride.
type CandidateIndex interface {
	Nearby(ctx context.Context, at models.Coord, radiusMeters float64, limit int) ([]string, error)
}

// Match pairs a ride snapshot with its proximity score.
type Match struct {
	Ride  *models.Ride   `json:"ride"`
	Score geo.MatchScore `json:"score"`
}

type Service struct {
	Store              storage.RideStore
	Index              CandidateIndex // optional
	DefaultMaxDistance float64        // meters, used when the caller passes 0
	IndexScanLimit     int            // cap on index candidates, 0 = default
	Now                func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// FindBestRides returns rides whose pickup and dropoff both lie within
// maxDistanceMeters of the requested pair, ordered by combined distance
// with departure time then ride ID as tie-breaks. limit <= 0 means
// unlimited. The result is fully materialized before returning.
func (s *Service) FindBestRides(ctx context.Context, pickup, dropoff models.Coord, maxDistanceMeters float64, limit int) ([]Match, error) {
	start := time.Now()
	defer func() {
		observability.MatchLatency.Observe(time.Since(start).Seconds())
	}()

	if maxDistanceMeters <= 0 {
		maxDistanceMeters = s.DefaultMaxDistance
	}
	now := s.now()

	candidates, err := s.candidates(ctx, pickup, maxDistanceMeters)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, ride := range candidates {
		if ride.Status != models.RideActive || !now.Before(ride.DepartureTime) {
			continue
		}
		avail, err := seats.Available(ride)
		if err != nil {
			return nil, err
		}
		if avail == 0 {
			continue
		}
		score, ok := geo.Score(ride, pickup, dropoff, maxDistanceMeters)
		if !ok {
			continue
		}
		matches = append(matches, Match{Ride: ride, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		return geo.Less(matches[i].Score, matches[i].Ride, matches[j].Score, matches[j].Ride)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	observability.MatchesTotal.Inc()
	return matches, nil
}

func (s *Service) candidates(ctx context.Context, pickup models.Coord, radius float64) ([]*models.Ride, error) {
	if s.Index == nil {
		return s.Store.List(), nil
	}
	scan := s.IndexScanLimit
	if scan <= 0 {
		scan = 200
	}
	ids, err := s.Index.Nearby(ctx, pickup, radius, scan)
	if err != nil {
		// degraded index is not a query failure; fall back to a full scan
		return s.Store.List(), nil
	}
	out := make([]*models.Ride, 0, len(ids))
	for _, id := range ids {
		ride, err := s.Store.Get(id)
		if err != nil {
			continue // index lag: ride gone from the store
		}
		out = append(out, ride)
	}
	return out, nil
}
