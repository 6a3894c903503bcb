package session

import (
	"context"
	"sync"
	"time"

	"frametruth/internal/auth"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in a map for tests and single-process
// setups.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]auth.Session
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]auth.Session)}
}

func (s *InMemoryStore) Save(_ context.Context, session auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, sessionID id.SessionID) (auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return auth.Session{}, sentinel.ErrNotFound
	}
	return session, nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sessionID, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, sessionID)
			n++
		}
	}
	return n, nil
}
