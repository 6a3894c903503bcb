//go:build integration

package grant_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"frametruth/internal/acl"
	"frametruth/internal/acl/store/grant"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
	"frametruth/pkg/testutil/containers"
)

type PostgresGrantSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *grant.PostgresStore

	owner   id.UserID
	grantee id.UserID
	fileID  id.FileID
}

func TestPostgresGrantSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresGrantSuite))
}

func (s *PostgresGrantSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = grant.NewPostgres(s.postgres.DB)
}

func (s *PostgresGrantSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "acl", "files", "users"))

	// The acl table references users and files, so each test starts from a
	// seeded owner, grantee, and file.
	s.owner = id.NewUserID()
	s.grantee = id.NewUserID()
	s.fileID = id.NewFileID()
	for _, u := range []id.UserID{s.owner, s.grantee} {
		_, err := s.postgres.DB.ExecContext(ctx,
			`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1, $2, '', 'user', now())`,
			uuid.UUID(u), u.String())
		s.Require().NoError(err)
	}
	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO files (id, owner_id, filename, storage_ref, size_bytes, sha256, created_at)
		 VALUES ($1, $2, 'scene.png', 'ref', 10, 'abc', now())`,
		uuid.UUID(s.fileID), uuid.UUID(s.owner))
	s.Require().NoError(err)
}

func (s *PostgresGrantSuite) newGrant(level acl.Level, expiresAt *time.Time) acl.Grant {
	return acl.Grant{
		FileID:    s.fileID,
		GranteeID: s.grantee,
		Level:     level,
		GrantedBy: s.owner,
		GrantedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

func (s *PostgresGrantSuite) TestUpsertIsIdempotentPerLevel() {
	ctx := context.Background()

	s.Require().NoError(s.store.Upsert(ctx, s.newGrant(acl.LevelRead, nil)))

	// Re-granting the same level refreshes metadata instead of duplicating.
	later := time.Now().UTC().Add(time.Hour)
	s.Require().NoError(s.store.Upsert(ctx, s.newGrant(acl.LevelRead, &later)))

	grants, err := s.store.ListForGrantee(ctx, s.fileID, s.grantee)
	s.Require().NoError(err)
	s.Require().Len(grants, 1)
	s.Require().NotNil(grants[0].ExpiresAt)
	s.WithinDuration(later, *grants[0].ExpiresAt, time.Second)
}

func (s *PostgresGrantSuite) TestDistinctLevelsCoexist() {
	ctx := context.Background()

	s.Require().NoError(s.store.Upsert(ctx, s.newGrant(acl.LevelRead, nil)))
	s.Require().NoError(s.store.Upsert(ctx, s.newGrant(acl.LevelWrite, nil)))

	grants, err := s.store.ListForGrantee(ctx, s.fileID, s.grantee)
	s.Require().NoError(err)
	s.Len(grants, 2)
}

func (s *PostgresGrantSuite) TestDeleteAbsentGrantReportsNotFound() {
	err := s.store.Delete(context.Background(), s.fileID, s.grantee, acl.LevelAdmin)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresGrantSuite) TestDeleteAllCountsRemovedRows() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, s.newGrant(acl.LevelRead, nil)))
	s.Require().NoError(s.store.Upsert(ctx, s.newGrant(acl.LevelWrite, nil)))

	n, err := s.store.DeleteAll(ctx, s.fileID, s.grantee)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *PostgresGrantSuite) TestDeleteExpiredLeavesActiveRows() {
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	expired := s.newGrant(acl.LevelRead, &past)
	active := s.newGrant(acl.LevelWrite, &future)
	forever := s.newGrant(acl.LevelAdmin, nil)
	for _, g := range []acl.Grant{expired, active, forever} {
		s.Require().NoError(s.store.Upsert(ctx, g))
	}

	n, err := s.store.DeleteExpired(ctx, time.Now().UTC())
	s.Require().NoError(err)
	s.Equal(1, n)

	grants, err := s.store.ListForGrantee(ctx, s.fileID, s.grantee)
	s.Require().NoError(err)
	s.Len(grants, 2)
}
