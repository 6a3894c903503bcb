package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
)

const testKey = "test-signing-key-0123456789abcdef"

func TestIssueValidateRoundTrip(t *testing.T) {
	svc, err := New(testKey, "frametruth", 15*time.Minute)
	require.NoError(t, err)

	userID := id.NewUserID()
	sessionID := id.NewSessionID()

	raw, err := svc.Issue(userID, sessionID, time.Now())
	require.NoError(t, err)

	gotUser, gotSession, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, sessionID, gotSession)
}

func TestValidate_ExpiredToken(t *testing.T) {
	svc, err := New(testKey, "frametruth", time.Minute)
	require.NoError(t, err)

	raw, err := svc.Issue(id.NewUserID(), id.NewSessionID(), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, _, err = svc.Validate(raw)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_WrongKey(t *testing.T) {
	issuer, err := New(testKey, "frametruth", time.Minute)
	require.NoError(t, err)
	verifier, err := New("a-different-signing-key-entirely!", "frametruth", time.Minute)
	require.NoError(t, err)

	raw, err := issuer.Issue(id.NewUserID(), id.NewSessionID(), time.Now())
	require.NoError(t, err)

	_, _, err = verifier.Validate(raw)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_Garbage(t *testing.T) {
	svc, err := New(testKey, "frametruth", time.Minute)
	require.NoError(t, err)

	_, _, err = svc.Validate("not.a.token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("", "frametruth", time.Minute)
	assert.Error(t, err)
}
