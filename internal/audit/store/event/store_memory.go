package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"frametruth/internal/audit"
)

// InMemoryStore keeps the relational mirror in a slice for tests and
// single-process setups.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []audit.Entry
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

func (s *InMemoryStore) Record(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, e)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if matches(e, f) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Purge(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	n := 0
	for _, e := range s.entries {
		if e.OccurredAt.Before(olderThan) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n, nil
}

func matches(e audit.Entry, f audit.Filter) bool {
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.FileID != nil && (e.FileID == nil || *e.FileID != *f.FileID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.OccurredAt.Before(*f.To) {
		return false
	}
	return true
}
