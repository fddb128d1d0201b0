// Package notify fans ride updates out to connected WebSocket clients.
// Delivery is best-effort: a missing or broken session is never an error
// for the caller.
package notify

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-tracking/internal/models"
)

// WSSession represents one connected client.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry holds sessions keyed by user ID.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	log      *slog.Logger
}

func NewWSRegistry(log *slog.Logger) *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession), log: log}
}

func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// RideChanged pushes the ride to its passenger and, when bound, its driver.
func (r *WSRegistry) RideChanged(ride *models.Ride) {
	event := map[string]any{"type": "ride_update", "ride": ride}
	r.push(ride.PassengerID, event)
	if ride.DriverID != "" {
		r.push(ride.DriverID, event)
	}
}

func (r *WSRegistry) push(userID string, event any) {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.send(event); err != nil {
		r.log.Warn("ws send failed", "user_id", userID, "error", err)
	}
}
