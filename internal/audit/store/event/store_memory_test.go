package event

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"frametruth/internal/audit"
	id "frametruth/pkg/domain"
)

type EventStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	base  time.Time
}

func (s *EventStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.base = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
}

func TestEventStoreSuite(t *testing.T) {
	suite.Run(t, new(EventStoreSuite))
}

func (s *EventStoreSuite) record(actor id.UserID, fileID *id.FileID, action string, at time.Time) {
	s.Require().NoError(s.store.Record(context.Background(), audit.Entry{
		ActorID:    actor,
		FileID:     fileID,
		Action:     action,
		OccurredAt: at,
	}))
}

func (s *EventStoreSuite) TestQueryOrdersNewestFirst() {
	actor := id.NewUserID()
	for i := 0; i < 3; i++ {
		s.record(actor, nil, fmt.Sprintf("action-%d", i), s.base.Add(time.Duration(i)*time.Minute))
	}

	entries, err := s.store.Query(context.Background(), audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal("action-2", entries[0].Action)
	s.Equal("action-0", entries[2].Action)
}

func (s *EventStoreSuite) TestQueryFiltersCombine() {
	actor := id.NewUserID()
	other := id.NewUserID()
	fileID := id.NewFileID()
	s.record(actor, &fileID, "VIEW", s.base)
	s.record(actor, &fileID, "DOWNLOAD", s.base.Add(time.Minute))
	s.record(other, &fileID, "VIEW", s.base.Add(2*time.Minute))
	s.record(actor, nil, "LOGIN", s.base.Add(3*time.Minute))

	entries, err := s.store.Query(context.Background(), audit.Filter{
		ActorID: &actor,
		FileID:  &fileID,
	})
	s.Require().NoError(err)
	s.Len(entries, 2)

	entries, err = s.store.Query(context.Background(), audit.Filter{Action: "VIEW"})
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *EventStoreSuite) TestQueryTimeRangeIsHalfOpen() {
	actor := id.NewUserID()
	for i := 0; i < 4; i++ {
		s.record(actor, nil, "VIEW", s.base.Add(time.Duration(i)*time.Hour))
	}
	from := s.base.Add(time.Hour)
	to := s.base.Add(3 * time.Hour)

	entries, err := s.store.Query(context.Background(), audit.Filter{From: &from, To: &to})
	s.Require().NoError(err)
	s.Len(entries, 2, "range is inclusive of From, exclusive of To")
}

func (s *EventStoreSuite) TestQueryAppliesLimit() {
	actor := id.NewUserID()
	for i := 0; i < 5; i++ {
		s.record(actor, nil, "VIEW", s.base.Add(time.Duration(i)*time.Second))
	}

	entries, err := s.store.Query(context.Background(), audit.Filter{Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.True(entries[0].OccurredAt.After(entries[1].OccurredAt))
}

func (s *EventStoreSuite) TestPurgeRemovesStrictlyOlderRows() {
	actor := id.NewUserID()
	s.record(actor, nil, "VIEW", s.base.Add(-48*time.Hour))
	s.record(actor, nil, "VIEW", s.base.Add(-24*time.Hour))
	s.record(actor, nil, "VIEW", s.base)

	n, err := s.store.Purge(context.Background(), s.base.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n, "a row exactly at the cutoff survives")

	entries, err := s.store.Query(context.Background(), audit.Filter{})
	s.Require().NoError(err)
	s.Len(entries, 2)
}
