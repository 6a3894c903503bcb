// Package ratelimit implements a sliding-window limiter for the credential
// endpoints. It slows brute-force attempts per client address; account
// lockout is deliberately not implemented, a flood of bad passwords must
// not let an attacker lock a victim out.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts events per key inside a sliding window. The window slides
// per timestamp, so bursts cannot hide at a fixed-window boundary.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string][]time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
	}
}

// Allow records one attempt for key at the given instant and reports
// whether it is within the limit. Denied attempts are not recorded, so a
// blocked client regains access as soon as old attempts age out.
func (l *Limiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, now)
	if len(kept) >= l.limit {
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// prune drops timestamps that slid out of the window and clears empty keys
// so idle clients do not accumulate.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	stamps := l.entries[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.entries, key)
		return nil
	}
	return kept
}
