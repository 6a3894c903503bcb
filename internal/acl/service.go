package acl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"frametruth/internal/platform/metrics"
	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/platform/sentinel"
	"frametruth/pkg/requestcontext"
)

// Store persists permission grants. Implementations are pure I/O; all
// authorization rules live in this service.
type Store interface {
	Upsert(ctx context.Context, grant Grant) error
	// Delete removes exactly one (file, grantee, level) row. Returns
	// sentinel.ErrNotFound when no such row exists.
	Delete(ctx context.Context, fileID id.FileID, granteeID id.UserID, level Level) error
	// DeleteAll removes every row for a grantee on a file, returning the count.
	DeleteAll(ctx context.Context, fileID id.FileID, granteeID id.UserID) (int, error)
	// ListForGrantee returns all rows for a (file, grantee) pair, expired
	// included; the service applies the expiry check at evaluation time.
	ListForGrantee(ctx context.Context, fileID id.FileID, granteeID id.UserID) ([]Grant, error)
	ListForFile(ctx context.Context, fileID id.FileID) ([]Grant, error)
	ListForUser(ctx context.Context, granteeID id.UserID) ([]Grant, error)
	// DeleteForFile removes every grant on a file. Participates in a caller
	// transaction when one is present in ctx (file deletion cascade).
	DeleteForFile(ctx context.Context, fileID id.FileID) (int, error)
	// DeleteExpired removes rows whose expiry has passed the given instant.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// OwnerLookup resolves a file to its owning actor. Returns
// sentinel.ErrNotFound when the file does not exist.
type OwnerLookup interface {
	Owner(ctx context.Context, fileID id.FileID) (id.UserID, error)
}

// Service is the access controller: it answers "can actor X do action Y on
// file R" from ownership plus the grant table, and owns grant mutation rules.
type Service struct {
	store   Store
	owners  OwnerLookup
	logger  *slog.Logger
	metrics *metrics.Metrics
	writes  *keyedMutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, owners OwnerLookup, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("grant store is required")
	}
	if owners == nil {
		return nil, errors.New("owner lookup is required")
	}
	svc := &Service{
		store:  store,
		owners: owners,
		writes: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CanAccess decides whether actor holds the required level on the file.
//
// The decision is false when the file does not exist (fail closed) and when
// the store is unavailable; the two cases carry distinct error codes so the
// audit layer can record them separately while the wire response stays a
// uniform denial.
func (s *Service) CanAccess(ctx context.Context, actorID id.UserID, fileID id.FileID, required Level) (bool, error) {
	owner, err := s.owners.Owner(ctx, fileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.AccessDecision("denied")
			return false, dErrors.New(dErrors.CodeNotFound, "file does not exist")
		}
		s.metrics.AccessDecision("error")
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "owner lookup failed")
	}

	// The owner holds every level implicitly; no grant row is ever stored
	// for ownership.
	if owner == actorID {
		s.metrics.AccessDecision("allowed")
		return true, nil
	}

	grants, err := s.store.ListForGrantee(ctx, fileID, actorID)
	if err != nil {
		s.metrics.AccessDecision("error")
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "grant lookup failed")
	}

	now := requestcontext.Now(ctx)
	for _, g := range grants {
		if g.Active(now) && g.Level.Satisfies(required) {
			s.metrics.AccessDecision("allowed")
			return true, nil
		}
	}
	s.metrics.AccessDecision("denied")
	return false, nil
}

// Grant upserts a (file, grantee, level) row. The granter must hold admin on
// the file; the owner always qualifies.
func (s *Service) Grant(ctx context.Context, granterID id.UserID, fileID id.FileID, granteeID id.UserID, level Level, expiresAt *time.Time) error {
	if _, ok := levelRank[level]; !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid permission level")
	}

	allowed, err := s.CanAccess(ctx, granterID, fileID, LevelAdmin)
	if err != nil {
		return err
	}
	if !allowed {
		return dErrors.New(dErrors.CodeForbidden, "insufficient permissions to grant access")
	}

	key := writeKey(fileID, granteeID)
	if err := s.writes.acquire(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "grant write lock wait exceeded")
	}
	defer s.writes.unlock(key)

	grant := Grant{
		FileID:    fileID,
		GranteeID: granteeID,
		Level:     level,
		GrantedBy: granterID,
		GrantedAt: requestcontext.Now(ctx),
		ExpiresAt: expiresAt,
	}
	if err := s.store.Upsert(ctx, grant); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "persist grant failed")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "permission granted",
			"file_id", fileID.String(),
			"grantee_id", granteeID.String(),
			"level", level.String(),
			"granted_by", granterID.String(),
		)
	}
	return nil
}

// Revoke removes exactly one grant row. The revoker must be the file owner or
// hold admin; revoking an absent grant reports not found, not success.
func (s *Service) Revoke(ctx context.Context, revokerID id.UserID, fileID id.FileID, granteeID id.UserID, level Level) error {
	if err := s.authorizeRevoke(ctx, revokerID, fileID); err != nil {
		return err
	}

	key := writeKey(fileID, granteeID)
	if err := s.writes.acquire(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "revoke write lock wait exceeded")
	}
	defer s.writes.unlock(key)

	if err := s.store.Delete(ctx, fileID, granteeID, level); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "permission not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "delete grant failed")
	}
	return nil
}

// RevokeAll removes every grant a grantee holds on a file in one operation.
func (s *Service) RevokeAll(ctx context.Context, revokerID id.UserID, fileID id.FileID, granteeID id.UserID) (int, error) {
	if err := s.authorizeRevoke(ctx, revokerID, fileID); err != nil {
		return 0, err
	}

	key := writeKey(fileID, granteeID)
	if err := s.writes.acquire(ctx, key); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeTimeout, "revoke write lock wait exceeded")
	}
	defer s.writes.unlock(key)

	n, err := s.store.DeleteAll(ctx, fileID, granteeID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "delete grants failed")
	}
	if n == 0 {
		return 0, dErrors.New(dErrors.CodeNotFound, "no permissions found")
	}
	return n, nil
}

// authorizeRevoke allows the file owner unconditionally; anyone else needs an
// admin grant. The owner check comes first so owner revocation works even
// when the grant table is briefly unreadable for the admin lookup.
func (s *Service) authorizeRevoke(ctx context.Context, revokerID id.UserID, fileID id.FileID) error {
	owner, err := s.owners.Owner(ctx, fileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "file does not exist")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "owner lookup failed")
	}
	if owner == revokerID {
		return nil
	}

	allowed, err := s.CanAccess(ctx, revokerID, fileID, LevelAdmin)
	if err != nil {
		return err
	}
	if !allowed {
		return dErrors.New(dErrors.CodeForbidden, "insufficient permissions to revoke access")
	}
	return nil
}

// ListForFile returns all grants on a file, expired included.
func (s *Service) ListForFile(ctx context.Context, fileID id.FileID) ([]Grant, error) {
	grants, err := s.store.ListForFile(ctx, fileID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list grants failed")
	}
	return grants, nil
}

// ActiveForUser returns the grants currently usable by a grantee across all
// files, for shared-file listings.
func (s *Service) ActiveForUser(ctx context.Context, granteeID id.UserID) ([]Grant, error) {
	grants, err := s.store.ListForUser(ctx, granteeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list grants failed")
	}
	now := requestcontext.Now(ctx)
	active := grants[:0]
	for _, g := range grants {
		if g.Active(now) {
			active = append(active, g)
		}
	}
	return active, nil
}

// SweepExpired deletes grant rows whose expiry has passed. Advisory cleanup:
// CanAccess never depends on the sweep having run.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "expiry sweep failed")
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "expired grants swept", "count", n)
	}
	if s.metrics != nil {
		s.metrics.SweepDeletedGrants.Add(float64(n))
	}
	return n, nil
}

// RemoveAllForFile deletes every grant on a file, joining the caller's
// transaction when one is in ctx. Used by the file deletion cascade.
func (s *Service) RemoveAllForFile(ctx context.Context, fileID id.FileID) (int, error) {
	return s.store.DeleteForFile(ctx, fileID)
}

func writeKey(fileID id.FileID, granteeID id.UserID) string {
	return fileID.String() + "|" + granteeID.String()
}
