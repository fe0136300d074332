package geo

import (
	"math"

	"github.com/example/ride-booking/internal/models"
)

// MatchScore describes how closely a ride's route fits a requested
// pickup/dropoff pair. Distances are meters.
type MatchScore struct {
	PickupDistance  float64 `json:"pickup_distance"`
	DropoffDistance float64 `json:"dropoff_distance"`
	TotalDistance   float64 `json:"total_distance"`
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Distance is Haversine over Coord values.
func Distance(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Score rates a ride against a requested pickup/dropoff pair. It returns
// false when either endpoint lies farther than maxDistanceMeters from the
// ride's route endpoints. Pure and deterministic.
func Score(ride *models.Ride, pickup, dropoff models.Coord, maxDistanceMeters float64) (MatchScore, bool) {
	pd := Distance(ride.Pickup.Coord, pickup)
	if pd > maxDistanceMeters {
		return MatchScore{}, false
	}
	dd := Distance(ride.Dropoff.Coord, dropoff)
	if dd > maxDistanceMeters {
		return MatchScore{}, false
	}
	return MatchScore{PickupDistance: pd, DropoffDistance: dd, TotalDistance: pd + dd}, true
}

// Less orders two scored rides: ascending total distance, then earlier
// departure, then ride ID. Total ordering keeps result sets reproducible.
func Less(a MatchScore, ra *models.Ride, b MatchScore, rb *models.Ride) bool {
	if a.TotalDistance != b.TotalDistance {
		return a.TotalDistance < b.TotalDistance
	}
	if !ra.DepartureTime.Equal(rb.DepartureTime) {
		return ra.DepartureTime.Before(rb.DepartureTime)
	}
	return ra.ID < rb.ID
}
