package core

import (
	"sync"

	"github.com/dkeye/Meet/internal/domain"
)

// Session is one live signaling connection and what it has declared about itself.
// Media handles are owned by the room the session joined, not by the session.
type Session struct {
	id     domain.SessionID
	signal SignalConnection

	mu        sync.RWMutex
	userID    domain.UserID
	name      string
	roomID    domain.RoomID
	capsKnown bool
	closed    bool
}

func NewSession(id domain.SessionID, signal SignalConnection) *Session {
	return &Session{id: id, signal: signal}
}

func (s *Session) ID() domain.SessionID     { return s.id }
func (s *Session) Signal() SignalConnection { return s.signal }

func (s *Session) Identity() (domain.UserID, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.name
}

// Bind records the room and identity after a successful join.
func (s *Session) Bind(roomID domain.RoomID, userID domain.UserID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
	s.userID = userID
	s.name = name
}

// Unbind clears the room association if it still points at roomID.
func (s *Session) Unbind(roomID domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID != roomID {
		return false
	}
	s.roomID = ""
	return true
}

func (s *Session) RoomID() (domain.RoomID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID, s.roomID != ""
}

func (s *Session) MarkCapabilitiesKnown() {
	s.mu.Lock()
	s.capsKnown = true
	s.mu.Unlock()
}

func (s *Session) CapabilitiesKnown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capsKnown
}

// MarkClosed flips the session to closed and reports whether this call did it.
func (s *Session) MarkClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
