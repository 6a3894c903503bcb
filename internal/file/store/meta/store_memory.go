package meta

import (
	"context"
	"sort"
	"sync"

	"frametruth/internal/file"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
)

// InMemoryStore keeps file metadata in a map for tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[id.FileID]file.File
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{files: make(map[id.FileID]file.File)}
}

func (s *InMemoryStore) Create(_ context.Context, f file.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[f.ID]; exists {
		return sentinel.ErrConflict
	}
	s.files[f.ID] = f
	return nil
}

func (s *InMemoryStore) ByID(_ context.Context, fileID id.FileID) (file.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok {
		return file.File{}, sentinel.ErrNotFound
	}
	return f, nil
}

func (s *InMemoryStore) Owner(_ context.Context, fileID id.FileID) (id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok {
		return id.UserID{}, sentinel.ErrNotFound
	}
	return f.OwnerID, nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.UserID) ([]file.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []file.File
	for _, f := range s.files {
		if f.OwnerID == ownerID {
			out = append(out, f)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListByIDs(_ context.Context, fileIDs []id.FileID) ([]file.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []file.File
	for _, fid := range fileIDs {
		if f, ok := s.files[fid]; ok {
			out = append(out, f)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, fileID id.FileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.files, fileID)
	return nil
}

func (s *InMemoryStore) Stats(_ context.Context) (file.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats file.Stats
	for _, f := range s.files {
		stats.TotalFiles++
		stats.TotalBytes += f.Size
	}
	return stats, nil
}

func sortNewestFirst(files []file.File) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
}
