package acl

import (
	"context"
	"sync"
)

// keyedMutex serializes writes per (file, grantee) key without a global lock,
// so grant churn on one file never contends with unrelated files. Acquisition
// honors context cancellation; callers surface the resulting timeout as a
// retryable failure.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*slot)}
}

func (k *keyedMutex) acquire(ctx context.Context, key string) error {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, false)
		return ctx.Err()
	}
}

func (k *keyedMutex) unlock(key string) {
	k.release(key, true)
}

func (k *keyedMutex) release(key string, held bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.slots[key]
	if s == nil {
		return
	}
	if held {
		<-s.ch
	}
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}
