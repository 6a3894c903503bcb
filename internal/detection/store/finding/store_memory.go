package finding

import (
	"context"
	"sort"
	"sync"

	"frametruth/internal/detection"
	id "frametruth/pkg/domain"
)

// InMemoryStore keeps detections in a slice for tests.
type InMemoryStore struct {
	mu         sync.RWMutex
	detections []detection.Detection
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, d detection.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = append(s.detections, d)
	return nil
}

func (s *InMemoryStore) ListForFile(_ context.Context, fileID id.FileID) ([]detection.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []detection.Detection
	for _, d := range s.detections {
		if d.FileID == fileID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) DeleteForFile(_ context.Context, fileID id.FileID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.detections[:0]
	n := 0
	for _, d := range s.detections {
		if d.FileID == fileID {
			n++
			continue
		}
		kept = append(kept, d)
	}
	s.detections = kept
	return n, nil
}
