// Package jobs runs periodic maintenance: expired grant cleanup, audit
// mirror retention, and session expiry for stores without native TTLs.
// Every task here is advisory; correctness never depends on a sweep
// having run (expiry is re-checked at evaluation time, and the hash
// chain is never pruned).
package jobs

import (
	"context"
	"log/slog"
	"time"

	"frametruth/internal/acl"
	"frametruth/internal/audit"
	"frametruth/internal/auth"
)

const defaultInterval = time.Hour

// Sweeper drives the maintenance loop.
type Sweeper struct {
	access    *acl.Service
	auditor   *audit.Service
	sessions  *auth.Service
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) { s.interval = interval }
}

// WithMirrorRetention enables purging of relational audit rows older than
// the given duration. Zero disables the purge entirely.
func WithMirrorRetention(retention time.Duration) Option {
	return func(s *Sweeper) { s.retention = retention }
}

func New(access *acl.Service, auditor *audit.Service, sessions *auth.Service, opts ...Option) *Sweeper {
	s := &Sweeper{
		access:   access,
		auditor:  auditor,
		sessions: sessions,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes sweeps on the configured interval until ctx is canceled.
// One sweep runs immediately on startup.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sweep runs each task independently; one failing task never blocks the
// others.
func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now()

	if s.access != nil {
		if _, err := s.access.SweepExpired(ctx, now); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "grant expiry sweep failed", "error", err)
		}
	}
	if s.auditor != nil && s.retention > 0 {
		if _, err := s.auditor.PurgeMirror(ctx, now.Add(-s.retention)); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "audit mirror purge failed", "error", err)
		}
	}
	if s.sessions != nil {
		if _, err := s.sessions.SweepExpiredSessions(ctx, now); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "session sweep failed", "error", err)
		}
	}
}
