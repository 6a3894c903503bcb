package grant

import (
	"context"
	"sync"
	"time"

	"frametruth/internal/acl"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
)

type grantKey struct {
	file    id.FileID
	grantee id.UserID
	level   acl.Level
}

// InMemoryStore keeps grants in a map for tests and single-process setups.
// It intentionally favors clarity over performance.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[grantKey]acl.Grant
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{grants: make(map[grantKey]acl.Grant)}
}

func (s *InMemoryStore) Upsert(_ context.Context, g acl.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey{g.FileID, g.GranteeID, g.Level}] = g
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, fileID id.FileID, granteeID id.UserID, level acl.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{fileID, granteeID, level}
	if _, ok := s.grants[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *InMemoryStore) DeleteAll(_ context.Context, fileID id.FileID, granteeID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.grants {
		if key.file == fileID && key.grantee == granteeID {
			delete(s.grants, key)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ListForGrantee(_ context.Context, fileID id.FileID, granteeID id.UserID) ([]acl.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []acl.Grant
	for key, g := range s.grants {
		if key.file == fileID && key.grantee == granteeID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListForFile(_ context.Context, fileID id.FileID) ([]acl.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []acl.Grant
	for key, g := range s.grants {
		if key.file == fileID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListForUser(_ context.Context, granteeID id.UserID) ([]acl.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []acl.Grant
	for key, g := range s.grants {
		if key.grantee == granteeID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteForFile(_ context.Context, fileID id.FileID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.grants {
		if key.file == fileID {
			delete(s.grants, key)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, g := range s.grants {
		if g.ExpiresAt != nil && g.ExpiresAt.Before(now) {
			delete(s.grants, key)
			n++
		}
	}
	return n, nil
}
