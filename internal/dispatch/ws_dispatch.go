package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-booking/internal/events"
)

// Notifier delivers a transition event to one user, best effort.
type Notifier interface {
	Notify(userID string, ev events.Event) error
}

// WSSession represents one connected user socket.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// WSRegistry holds live user sessions keyed by user ID. A user with no
// session simply misses the push; the event stream remains the source of
// truth for delivery.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[userID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[userID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

func (r *WSRegistry) Notify(userID string, ev events.Event) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(ev); err != nil {
		if r.logger != nil {
			r.logger.Warn("ws send failed", "user_id", userID, "error", err)
		}
		return err
	}
	return nil
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
