package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a coordinate plus the optional display address the caller
// resolved through geocoding. The engine never reads Address.
type Location struct {
	Coord   Coord  `json:"coord"`
	Address string `json:"address,omitempty"`
}

type RideStatus string

const (
	RideActive    RideStatus = "active"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestConfirmed RequestStatus = "confirmed"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestCancelled
}

type GenderPreference string

const (
	GenderAny    GenderPreference = "any"
	GenderMale   GenderPreference = "male"
	GenderFemale GenderPreference = "female"
)

// Preferences are informational flags shown to riders; the engine stores
// and returns them but never enforces them.
type Preferences struct {
	Smoking bool             `json:"smoking_allowed"`
	Pets    bool             `json:"pets_allowed"`
	Alcohol bool             `json:"alcohol_allowed"`
	Gender  GenderPreference `json:"gender_preference"`
}

type Vehicle struct {
	Model string `json:"car_model,omitempty"`
	Plate string `json:"car_number,omitempty"`
}

// Ride is the aggregate root. It exclusively owns its Passengers slice;
// insertion order is request order and is used for tie-breaking.
type Ride struct {
	ID            string              `json:"id"`
	CreatorID     string              `json:"creator_id"`
	Pickup        Location            `json:"pickup"`
	Dropoff       Location            `json:"dropoff"`
	DepartureTime time.Time           `json:"departure_time"`
	TotalSeats    int                 `json:"total_seats"`
	Price         float64             `json:"price"`
	Vehicle       Vehicle             `json:"vehicle"`
	Preferences   Preferences         `json:"preferences"`
	Status        RideStatus          `json:"status"`
	Passengers    []*PassengerRequest `json:"passengers"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type PassengerRequest struct {
	UserID      string        `json:"user_id"`
	RideID      string        `json:"ride_id"`
	Status      RequestStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	DecidedAt   *time.Time    `json:"decided_at,omitempty"`
}

// ActiveRequest returns the user's pending or confirmed request on the
// ride, if any. Rejected and cancelled requests do not block a new one.
func (r *Ride) ActiveRequest(userID string) *PassengerRequest {
	for _, p := range r.Passengers {
		if p.UserID == userID && !p.Status.Terminal() {
			return p
		}
	}
	return nil
}

// Request returns the user's newest request regardless of status.
func (r *Ride) Request(userID string) *PassengerRequest {
	for i := len(r.Passengers) - 1; i >= 0; i-- {
		if r.Passengers[i].UserID == userID {
			return r.Passengers[i]
		}
	}
	return nil
}

// Clone deep-copies the ride so snapshots never alias live aggregate state.
func (r *Ride) Clone() *Ride {
	cp := *r
	cp.Passengers = make([]*PassengerRequest, len(r.Passengers))
	for i, p := range r.Passengers {
		pc := *p
		if p.DecidedAt != nil {
			t := *p.DecidedAt
			pc.DecidedAt = &t
		}
		cp.Passengers[i] = &pc
	}
	return &cp
}
