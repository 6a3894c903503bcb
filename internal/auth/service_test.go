package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frametruth/internal/audit"
	"frametruth/internal/audit/chain"
	"frametruth/internal/audit/store/event"
	"frametruth/internal/auth"
	"frametruth/internal/auth/store/session"
	"frametruth/internal/auth/store/user"
	"frametruth/internal/token"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/requestcontext"
)

type authFixture struct {
	svc      *auth.Service
	sessions *session.InMemoryStore
	chain    *chain.Log
	events   *event.InMemoryStore
}

func newFixture(t *testing.T, opts ...auth.Option) *authFixture {
	t.Helper()
	chainLog, err := chain.New(t.TempDir())
	require.NoError(t, err)
	events := event.NewMemory()
	recorder, err := audit.New(events, chainLog)
	require.NoError(t, err)

	tokens, err := token.New("test-signing-key-0123456789abcdef", "frametruth", 15*time.Minute)
	require.NoError(t, err)
	sessions := session.NewMemory()
	svc, err := auth.New(user.NewMemory(), sessions, tokens,
		append([]auth.Option{auth.WithRecorder(recorder)}, opts...)...)
	require.NoError(t, err)
	return &authFixture{svc: svc, sessions: sessions, chain: chainLog, events: events}
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), "alice", "short")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestRegister_DuplicateUsernameConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	_, err = f.svc.Register(context.Background(), "alice", "another password")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestLogin_RoundTripThroughAuthenticate(t *testing.T) {
	f := newFixture(t)
	registered, err := f.svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)

	sess, accessToken, err := f.svc.Login(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, sess.UserID)
	require.NotEmpty(t, accessToken)

	authed, sessionID, err := f.svc.Authenticate(context.Background(), accessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, authed.ID)
	assert.Equal(t, sess.ID, sessionID)
	assert.Empty(t, authed.PasswordHash)
}

func TestLogin_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)

	_, _, errWrong := f.svc.Login(context.Background(), "alice", "not the password")
	_, _, errUnknown := f.svc.Login(context.Background(), "nobody", "whatever")
	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.True(t, dErrors.HasCode(errWrong, dErrors.CodeUnauthorized))
	assert.True(t, dErrors.HasCode(errUnknown, dErrors.CodeUnauthorized))
	assert.Equal(t, errWrong.Error(), errUnknown.Error(),
		"responses must not reveal whether the account exists")
}

func TestLogin_FailureLandsOnSecurityChain(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)

	_, _, err = f.svc.Login(context.Background(), "alice", "not the password")
	require.Error(t, err)

	res, err := f.chain.Verify(context.Background(), audit.ChannelSecurity)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.TotalRecords)
}

func TestAuthenticate_ExpiredSessionRejected(t *testing.T) {
	f := newFixture(t, auth.WithSessionTTL(time.Hour))
	_, err := f.svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	_, accessToken, err := f.svc.Login(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)

	later := requestcontext.WithTime(context.Background(), time.Now().Add(2*time.Hour))
	_, _, err = f.svc.Authenticate(later, accessToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestLogout_RevokesOutstandingTokens(t *testing.T) {
	f := newFixture(t)
	registered, err := f.svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	sess, accessToken, err := f.svc.Login(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), registered.ID, sess.ID))

	_, _, err = f.svc.Authenticate(context.Background(), accessToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	// Logging out twice is harmless.
	require.NoError(t, f.svc.Logout(context.Background(), registered.ID, sess.ID))
}

func TestSweepExpiredSessions(t *testing.T) {
	f := newFixture(t, auth.WithSessionTTL(time.Hour))
	_, err := f.svc.Register(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	_, _, err = f.svc.Login(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)

	n, err := f.svc.SweepExpiredSessions(context.Background(), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
