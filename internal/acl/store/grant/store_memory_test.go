package grant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"frametruth/internal/acl"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
)

// Grant store invariants (single row per key, not-found on absent delete,
// expiry sweep) are exercised here against the in-memory implementation; the
// postgres implementation shares them via the integration test.
type GrantStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *GrantStoreSuite) SetupTest() {
	s.store = NewMemory()
}

func TestGrantStoreSuite(t *testing.T) {
	suite.Run(t, new(GrantStoreSuite))
}

func (s *GrantStoreSuite) TestUpsertIsIdempotentPerKey() {
	fileID := id.NewFileID()
	grantee := id.NewUserID()
	first := acl.Grant{
		FileID:    fileID,
		GranteeID: grantee,
		Level:     acl.LevelRead,
		GrantedBy: id.NewUserID(),
		GrantedAt: time.Now(),
	}
	s.Require().NoError(s.store.Upsert(context.Background(), first))

	refreshed := first
	refreshed.GrantedBy = id.NewUserID()
	refreshed.GrantedAt = first.GrantedAt.Add(time.Minute)
	s.Require().NoError(s.store.Upsert(context.Background(), refreshed))

	grants, err := s.store.ListForGrantee(context.Background(), fileID, grantee)
	s.Require().NoError(err)
	s.Require().Len(grants, 1, "re-granting the same level must not create a second row")
	s.Equal(refreshed.GrantedBy, grants[0].GrantedBy)
	s.Equal(refreshed.GrantedAt, grants[0].GrantedAt)
}

func (s *GrantStoreSuite) TestDistinctLevelsAreDistinctRows() {
	fileID := id.NewFileID()
	grantee := id.NewUserID()
	for _, level := range []acl.Level{acl.LevelRead, acl.LevelWrite} {
		s.Require().NoError(s.store.Upsert(context.Background(), acl.Grant{
			FileID:    fileID,
			GranteeID: grantee,
			Level:     level,
			GrantedBy: id.NewUserID(),
			GrantedAt: time.Now(),
		}))
	}

	grants, err := s.store.ListForGrantee(context.Background(), fileID, grantee)
	s.Require().NoError(err)
	s.Len(grants, 2)
}

func (s *GrantStoreSuite) TestDeleteAbsentGrantReportsNotFound() {
	err := s.store.Delete(context.Background(), id.NewFileID(), id.NewUserID(), acl.LevelRead)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *GrantStoreSuite) TestDeleteAllCountsRemovedRows() {
	fileID := id.NewFileID()
	grantee := id.NewUserID()
	for _, level := range []acl.Level{acl.LevelRead, acl.LevelWrite, acl.LevelAdmin} {
		s.Require().NoError(s.store.Upsert(context.Background(), acl.Grant{
			FileID: fileID, GranteeID: grantee, Level: level,
			GrantedBy: id.NewUserID(), GrantedAt: time.Now(),
		}))
	}

	n, err := s.store.DeleteAll(context.Background(), fileID, grantee)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.store.DeleteAll(context.Background(), fileID, grantee)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *GrantStoreSuite) TestDeleteExpiredKeepsUnexpiredRows() {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	fileID := id.NewFileID()

	s.Require().NoError(s.store.Upsert(context.Background(), acl.Grant{
		FileID: fileID, GranteeID: id.NewUserID(), Level: acl.LevelRead,
		GrantedBy: id.NewUserID(), GrantedAt: past, ExpiresAt: &past,
	}))
	s.Require().NoError(s.store.Upsert(context.Background(), acl.Grant{
		FileID: fileID, GranteeID: id.NewUserID(), Level: acl.LevelRead,
		GrantedBy: id.NewUserID(), GrantedAt: past, ExpiresAt: &future,
	}))
	s.Require().NoError(s.store.Upsert(context.Background(), acl.Grant{
		FileID: fileID, GranteeID: id.NewUserID(), Level: acl.LevelRead,
		GrantedBy: id.NewUserID(), GrantedAt: past,
	}))

	n, err := s.store.DeleteExpired(context.Background(), now)
	s.Require().NoError(err)
	s.Equal(1, n)

	remaining, err := s.store.ListForFile(context.Background(), fileID)
	s.Require().NoError(err)
	s.Len(remaining, 2)
}
