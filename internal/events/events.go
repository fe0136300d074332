// Package events defines the transition events the engine emits after a
// mutation commits. The engine guarantees emission, not delivery; the
// notification dispatcher downstream owns user-facing delivery.
package events

import (
	"context"
	"time"
)

type Type string

const (
	RequestCreated   Type = "request_created"
	RequestDecided   Type = "request_decided"
	RequestCancelled Type = "request_cancelled"
	RideCancelled    Type = "ride_cancelled"
	RideCompleted    Type = "ride_completed"
)

// Event describes one committed transition. UserID is the counterparty to
// notify: the requester for decisions, the driver for new requests, every
// affected passenger for ride-level changes.
type Event struct {
	Type    Type      `json:"type"`
	RideID  string    `json:"ride_id"`
	UserID  string    `json:"user_id"`
	ActorID string    `json:"actor_id"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
