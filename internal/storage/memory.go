package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"

	"github.com/google/uuid"

	"frametruth/pkg/platform/sentinel"
)

// InMemoryStore keeps blobs in a map for tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryStore) Store(_ context.Context, r io.Reader) (Blob, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Blob{}, err
	}
	ref := uuid.NewString()
	sum := sha256.Sum256(content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = content
	return Blob{Ref: ref, SHA256: hex.EncodeToString(sum[:]), Size: int64(len(content))}, nil
}

func (s *InMemoryStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.blobs[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (s *InMemoryStore) Remove(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	return nil
}
