package user

import (
	"context"
	"sync"
	"time"

	"frametruth/internal/auth"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
)

// InMemoryStore keeps accounts in maps for tests.
type InMemoryStore struct {
	mu         sync.RWMutex
	byID       map[id.UserID]auth.User
	byUsername map[string]id.UserID
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:       make(map[id.UserID]auth.User),
		byUsername: make(map[string]id.UserID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[u.Username]; exists {
		return sentinel.ErrConflict
	}
	s.byID[u.ID] = u
	s.byUsername[u.Username] = u.ID
	return nil
}

func (s *InMemoryStore) ByUsername(_ context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byUsername[username]
	if !ok {
		return auth.User{}, sentinel.ErrNotFound
	}
	return s.byID[userID], nil
}

func (s *InMemoryStore) ByID(_ context.Context, userID id.UserID) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return auth.User{}, sentinel.ErrNotFound
	}
	return u, nil
}

func (s *InMemoryStore) SetLastLogin(_ context.Context, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.LastLogin = &at
	s.byID[userID] = u
	return nil
}
