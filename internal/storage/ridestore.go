package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

var (
	ErrNotFound      = errors.New("ride not found")
	ErrAlreadyExists = errors.New("ride already exists")
)

// RideStore holds the live Ride aggregates. Mutate is the engine's only
// write path: it runs fn while holding that ride's lock, which is what
// serializes seat accounting per ride. Reads return deep-copied snapshots.
type RideStore interface {
	Create(r *models.Ride) error
	Get(id string) (*models.Ride, error)
	List() []*models.Ride
	Mutate(id string, fn func(*models.Ride) error) (*models.Ride, error)
}

// Archiver is the durable write-through store. It is invoked after a
// mutation commits, outside the ride's critical section.
type Archiver interface {
	SaveRide(ctx context.Context, r *models.Ride) error
}

type rideEntry struct {
	mu   sync.Mutex
	ride *models.Ride
}

// MemoryStore keeps one lock per ride so operations on different rides
// never contend. The outer lock only guards the map itself.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*rideEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*rideEntry)}
}

func (m *MemoryStore) Create(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return ErrAlreadyExists
	}
	m.rides[r.ID] = &rideEntry{ride: r.Clone()}
	return nil
}

func (m *MemoryStore) entry(id string) (*rideEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) Get(id string) (*models.Ride, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ride.Clone(), nil
}

func (m *MemoryStore) List() []*models.Ride {
	m.mu.RLock()
	entries := make([]*rideEntry, 0, len(m.rides))
	for _, e := range m.rides {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*models.Ride, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.ride.Clone())
		e.mu.Unlock()
	}
	return out
}

// Mutate runs fn against the live aggregate under the ride's lock and
// returns a snapshot of the committed state. If fn errors the mutation is
// considered not to have happened; fn must check guards before writing.
func (m *MemoryStore) Mutate(id string, fn func(*models.Ride) error) (*models.Ride, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.ride); err != nil {
		return nil, err
	}
	e.ride.UpdatedAt = time.Now()
	return e.ride.Clone(), nil
}
