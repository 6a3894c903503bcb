package file_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frametruth/internal/acl"
	"frametruth/internal/acl/store/grant"
	"frametruth/internal/audit"
	"frametruth/internal/audit/chain"
	"frametruth/internal/audit/store/event"
	"frametruth/internal/detection"
	"frametruth/internal/detection/store/finding"
	"frametruth/internal/file"
	"frametruth/internal/file/store/meta"
	"frametruth/internal/storage"
	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
)

type fixture struct {
	gateway *file.Gateway
	access  *acl.Service
	auditor *audit.Service
	chain   *chain.Log
	events  *event.InMemoryStore
	files   *meta.InMemoryStore
	blobs   *storage.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files := meta.NewMemory()
	blobs := storage.NewMemory()
	events := event.NewMemory()

	chainLog, err := chain.New(t.TempDir())
	require.NoError(t, err)
	auditor, err := audit.New(events, chainLog)
	require.NoError(t, err)
	access, err := acl.New(grant.NewMemory(), files)
	require.NoError(t, err)
	detector, err := detection.New(detection.NoopAnalyzer{}, finding.NewMemory())
	require.NoError(t, err)

	gateway, err := file.NewGateway(files, blobs, access, auditor,
		file.WithDetections(detector))
	require.NoError(t, err)
	return &fixture{
		gateway: gateway, access: access, auditor: auditor,
		chain: chainLog, events: events, files: files, blobs: blobs,
	}
}

func (f *fixture) upload(t *testing.T, owner id.UserID, name, content string) file.File {
	t.Helper()
	uploaded, err := f.gateway.Upload(context.Background(), owner, name, "image/png", strings.NewReader(content))
	require.NoError(t, err)
	return uploaded
}

func TestUpload_StoresContentAndRecordsChain(t *testing.T) {
	f := newFixture(t)
	owner := id.NewUserID()

	uploaded := f.upload(t, owner, "scene.png", "pixel data")
	assert.Equal(t, owner, uploaded.OwnerID)
	assert.Equal(t, int64(len("pixel data")), uploaded.Size)
	assert.Len(t, uploaded.SHA256, 64)

	res, err := f.chain.Verify(context.Background(), audit.ChannelAccess)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.TotalRecords)
}

func TestShareRevokeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	grantee := id.NewUserID()
	uploaded := f.upload(t, owner, "scene.png", "pixel data")

	require.NoError(t, f.gateway.Share(ctx, owner, uploaded.ID, grantee, acl.LevelRead, nil))

	allowed, err := f.access.CanAccess(ctx, grantee, uploaded.ID, acl.LevelRead)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = f.access.CanAccess(ctx, grantee, uploaded.ID, acl.LevelWrite)
	require.NoError(t, err)
	assert.False(t, allowed)

	level := acl.LevelRead
	require.NoError(t, f.gateway.RevokeAccess(ctx, owner, uploaded.ID, grantee, &level))
	allowed, err = f.access.CanAccess(ctx, grantee, uploaded.ID, acl.LevelRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Upload, share and revoke each chained one record; the chain stays
	// verifiable end to end.
	res, err := f.chain.Verify(ctx, audit.ChannelAccess)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 3, res.TotalRecords)
}

func TestView_DeniedForStrangerAndRecordedAsSecurityEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	stranger := id.NewUserID()
	uploaded := f.upload(t, owner, "scene.png", "pixel data")

	_, _, err := f.gateway.View(ctx, stranger, uploaded.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	res, err := f.chain.Verify(ctx, audit.ChannelSecurity)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRecords)
}

func TestView_MissingFileLooksLikeDenial(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.gateway.View(context.Background(), id.NewUserID(), id.NewFileID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden),
		"a probe for a nonexistent file must be indistinguishable from a denial")
}

func TestShare_MissingFileIsChainedAsDenial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.gateway.Share(ctx, id.NewUserID(), id.NewFileID(), id.NewUserID(), acl.LevelRead, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// The failed attempt must leave a trace on the security chain even
	// though the file never existed.
	res, err := f.chain.Verify(ctx, audit.ChannelSecurity)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.TotalRecords)
}

func TestRevokeAccess_MissingFileIsChainedAsDenial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.gateway.RevokeAccess(ctx, id.NewUserID(), id.NewFileID(), id.NewUserID(), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	res, err := f.chain.Verify(ctx, audit.ChannelSecurity)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRecords)
}

func TestRevokeAccess_AbsentGrantIsNotASecurityEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	uploaded := f.upload(t, owner, "scene.png", "pixel data")

	level := acl.LevelRead
	err := f.gateway.RevokeAccess(ctx, owner, uploaded.ID, id.NewUserID(), &level)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// The owner revoking a grant that does not exist is an ordinary error,
	// not a denied access attempt.
	res, err := f.chain.Verify(ctx, audit.ChannelSecurity)
	require.NoError(t, err)
	assert.True(t, res.Empty)
}

func TestDownload_StreamsContentAfterAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	uploaded := f.upload(t, owner, "scene.png", "pixel data")

	got, rc, err := f.gateway.Download(ctx, owner, uploaded.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, uploaded.ID, got.ID)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pixel data", string(content))

	entries, err := f.events.Query(ctx, audit.Filter{FileID: &uploaded.ID, Action: "DOWNLOAD"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDelete_CascadesAndRemovesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	grantee := id.NewUserID()
	uploaded := f.upload(t, owner, "scene.png", "pixel data")
	require.NoError(t, f.gateway.Share(ctx, owner, uploaded.ID, grantee, acl.LevelRead, nil))

	require.NoError(t, f.gateway.Delete(ctx, owner, uploaded.ID))

	_, err := f.files.ByID(ctx, uploaded.ID)
	assert.Error(t, err)
	_, err = f.blobs.Open(ctx, uploaded.StorageRef)
	assert.Error(t, err)
	grants, err := f.access.ListForFile(ctx, uploaded.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestDelete_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	reader := id.NewUserID()
	uploaded := f.upload(t, owner, "scene.png", "pixel data")
	require.NoError(t, f.gateway.Share(ctx, owner, uploaded.ID, reader, acl.LevelWrite, nil))

	err := f.gateway.Delete(ctx, reader, uploaded.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestList_SeparatesOwnedAndShared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	other := id.NewUserID()
	mine := f.upload(t, owner, "mine.png", "a")
	theirs := f.upload(t, other, "theirs.png", "b")
	f.upload(t, other, "private.png", "c")
	require.NoError(t, f.gateway.Share(ctx, other, theirs.ID, owner, acl.LevelRead, nil))

	listing, err := f.gateway.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, listing.Owned, 1)
	assert.Equal(t, mine.ID, listing.Owned[0].ID)
	require.Len(t, listing.Shared, 1)
	assert.Equal(t, theirs.ID, listing.Shared[0].ID)
}

type brokenChain struct{}

func (brokenChain) Append(context.Context, string, chain.Entry) (string, error) {
	return "", dErrors.New(dErrors.CodeAuditChain, "disk full")
}

func (brokenChain) Verify(_ context.Context, channel string) (chain.Result, error) {
	return chain.Result{Channel: channel}, nil
}

func (brokenChain) Export(_ context.Context, channel, _ string) (chain.Result, error) {
	return chain.Result{Channel: channel}, nil
}

func TestUpload_ChainOutageFailsOperation(t *testing.T) {
	files := meta.NewMemory()
	auditor, err := audit.New(event.NewMemory(), brokenChain{})
	require.NoError(t, err)
	access, err := acl.New(grant.NewMemory(), files)
	require.NoError(t, err)
	gateway, err := file.NewGateway(files, storage.NewMemory(), access, auditor)
	require.NoError(t, err)

	_, err = gateway.Upload(context.Background(), id.NewUserID(), "scene.png", "image/png",
		strings.NewReader("pixel data"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditChain),
		"an unaudited mutation must surface as operation failure")
}

func TestShare_ExpiredGrantDeniesUntilSwept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := id.NewUserID()
	grantee := id.NewUserID()
	uploaded := f.upload(t, owner, "scene.png", "pixel data")

	expiry := time.Now().Add(-time.Minute)
	require.NoError(t, f.gateway.Share(ctx, owner, uploaded.ID, grantee, acl.LevelRead, &expiry))

	allowed, err := f.access.CanAccess(ctx, grantee, uploaded.ID, acl.LevelRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}
