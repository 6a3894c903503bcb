package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frametruth/internal/audit"
	"frametruth/internal/audit/chain"
	"frametruth/internal/audit/store/event"
	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/requestcontext"
)

func newService(t *testing.T, opts ...audit.Option) (*audit.Service, *event.InMemoryStore, *chain.Log) {
	t.Helper()
	events := event.NewMemory()
	chainLog, err := chain.New(t.TempDir())
	require.NoError(t, err)
	svc, err := audit.New(events, chainLog, opts...)
	require.NoError(t, err)
	return svc, events, chainLog
}

type failingEventStore struct {
	event.InMemoryStore
}

func (f *failingEventStore) Record(context.Context, audit.Entry) error {
	return errors.New("mirror database unreachable")
}

type failingChain struct{}

func (failingChain) Append(context.Context, string, chain.Entry) (string, error) {
	return "", dErrors.New(dErrors.CodeAuditChain, "disk full")
}

func (failingChain) Verify(_ context.Context, channel string) (chain.Result, error) {
	return chain.Result{Channel: channel}, nil
}

func (failingChain) Export(_ context.Context, channel, _ string) (chain.Result, error) {
	return chain.Result{Channel: channel}, nil
}

type captPublisher struct {
	mu   sync.Mutex
	keys []string
	vals [][]byte
}

func (p *captPublisher) Publish(_ context.Context, key string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.vals = append(p.vals, value)
}

func TestRecord_WritesBothSinksAndReturnsReceipt(t *testing.T) {
	svc, events, chainLog := newService(t)
	actor := id.NewUserID()
	fileID := id.NewFileID()

	receipt, err := svc.Record(context.Background(), audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: actor,
		FileID:  &fileID,
		Action:  "VIEW",
	})
	require.NoError(t, err)
	assert.Len(t, receipt, 64, "receipt is the hex record hash")

	entries, err := events.Query(context.Background(), audit.Filter{ActorID: &actor})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "VIEW", entries[0].Action)

	res, err := chainLog.Verify(context.Background(), audit.ChannelAccess)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.TotalRecords)
}

func TestRecord_MirrorFailureIsAbsorbed(t *testing.T) {
	chainLog, err := chain.New(t.TempDir())
	require.NoError(t, err)
	svc, err := audit.New(&failingEventStore{}, chainLog)
	require.NoError(t, err)

	receipt, err := svc.Record(context.Background(), audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: id.NewUserID(),
		Action:  "VIEW",
	})
	require.NoError(t, err, "a mirror failure must not fail the operation")
	assert.NotEmpty(t, receipt)

	// The event still reached the access chain, and the mirror failure
	// itself is chained as a system event on the security channel.
	access, err := chainLog.Verify(context.Background(), audit.ChannelAccess)
	require.NoError(t, err)
	assert.Equal(t, 1, access.TotalRecords)

	security, err := chainLog.Verify(context.Background(), audit.ChannelSecurity)
	require.NoError(t, err)
	assert.Equal(t, 1, security.TotalRecords)
	assert.True(t, security.Valid)
}

func TestRecord_ChainFailureFailsOperation(t *testing.T) {
	svc, err := audit.New(event.NewMemory(), failingChain{})
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: id.NewUserID(),
		Action:  "DOWNLOAD",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditChain))
}

func TestRecord_SecurityEventsRouteToSecurityChannel(t *testing.T) {
	svc, _, chainLog := newService(t)

	_, err := svc.Record(context.Background(), audit.Event{
		Type:    audit.TypeSecurityEvent,
		ActorID: id.NewUserID(),
		Action:  "LOGIN_FAILED",
	})
	require.NoError(t, err)

	security, err := chainLog.Verify(context.Background(), audit.ChannelSecurity)
	require.NoError(t, err)
	assert.Equal(t, 1, security.TotalRecords)

	access, err := chainLog.Verify(context.Background(), audit.ChannelAccess)
	require.NoError(t, err)
	assert.True(t, access.Empty)
}

func TestRecord_EnrichesFromRequestContext(t *testing.T) {
	svc, events, _ := newService(t)
	actor := id.NewUserID()
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7", "curl/8.5", "curl / Linux")

	_, err := svc.Record(ctx, audit.Event{
		Type:    audit.TypeUserAction,
		ActorID: actor,
		Action:  "LOGIN",
	})
	require.NoError(t, err)

	entries, err := events.Query(context.Background(), audit.Filter{ActorID: &actor})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "203.0.113.7", entries[0].IPAddress)
	assert.Equal(t, "curl/8.5", entries[0].UserAgent)
	assert.True(t, entries[0].OccurredAt.Equal(at))
}

func TestRecord_MirrorsToOpsPublisher(t *testing.T) {
	pub := &captPublisher{}
	svc, _, _ := newService(t, audit.WithOpsPublisher(pub))

	receipt, err := svc.Record(context.Background(), audit.Event{
		Type:    audit.TypeFileAccess,
		ActorID: id.NewUserID(),
		Action:  "VIEW",
	})
	require.NoError(t, err)

	require.Len(t, pub.keys, 1)
	assert.Equal(t, receipt, pub.keys[0])
	var payload struct {
		Action     string `json:"action"`
		RecordHash string `json:"record_hash"`
	}
	require.NoError(t, json.Unmarshal(pub.vals[0], &payload))
	assert.Equal(t, "VIEW", payload.Action)
	assert.Equal(t, receipt, payload.RecordHash)
}

func TestPurgeMirror_LeavesChainIntact(t *testing.T) {
	svc, events, chainLog := newService(t)
	actor := id.NewUserID()
	old := time.Now().Add(-90 * 24 * time.Hour)

	_, err := svc.Record(requestcontext.WithTime(context.Background(), old), audit.Event{
		Type: audit.TypeFileAccess, ActorID: actor, Action: "VIEW",
	})
	require.NoError(t, err)

	n, err := svc.PurgeMirror(context.Background(), time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := events.Query(context.Background(), audit.Filter{ActorID: &actor})
	require.NoError(t, err)
	assert.Empty(t, entries)

	res, err := chainLog.Verify(context.Background(), audit.ChannelAccess)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.TotalRecords, "retention pruning never touches the chain")
}
