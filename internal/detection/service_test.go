package detection_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frametruth/internal/detection"
	"frametruth/internal/detection/store/finding"
	id "frametruth/pkg/domain"
)

type fixedAnalyzer struct {
	finding detection.Finding
}

func (a fixedAnalyzer) Analyze(_ context.Context, content io.Reader, _ string) (detection.Finding, error) {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return detection.Finding{}, err
	}
	return a.finding, nil
}

func TestAnalyze_FlagsAtThreshold(t *testing.T) {
	store := finding.NewMemory()
	svc, err := detection.New(
		fixedAnalyzer{detection.Finding{DetectorName: "model", DetectorVersion: "3", Score: 0.8, Label: "likely_forged"}},
		store,
		detection.WithFlagThreshold(0.8),
	)
	require.NoError(t, err)

	d, err := svc.Analyze(context.Background(), id.NewFileID(), strings.NewReader("content"), "image/png")
	require.NoError(t, err)
	assert.True(t, d.Flagged, "a score equal to the threshold is flagged")
	assert.Equal(t, "likely_forged", d.Label)
}

func TestAnalyze_BelowThresholdNotFlagged(t *testing.T) {
	store := finding.NewMemory()
	svc, err := detection.New(
		fixedAnalyzer{detection.Finding{DetectorName: "model", DetectorVersion: "3", Score: 0.42, Label: "uncertain"}},
		store,
	)
	require.NoError(t, err)
	fileID := id.NewFileID()

	d, err := svc.Analyze(context.Background(), fileID, strings.NewReader("content"), "image/png")
	require.NoError(t, err)
	assert.False(t, d.Flagged)

	stored, err := svc.ListForFile(context.Background(), fileID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, d.ID, stored[0].ID)
}

func TestNoopAnalyzer_ReturnsUnscored(t *testing.T) {
	f, err := detection.NoopAnalyzer{}.Analyze(context.Background(), strings.NewReader("content"), "image/png")
	require.NoError(t, err)
	assert.Zero(t, f.Score)
	assert.Equal(t, "unscored", f.Label)
}

func TestRemoteAnalyzer_ParsesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "raw bytes", string(body))
		w.Write([]byte(`{"detector":"frametruth-cnn","version":"2.1","score":0.93,"label":"forged"}`))
	}))
	defer srv.Close()

	f, err := detection.NewRemoteAnalyzer(srv.URL).Analyze(context.Background(), strings.NewReader("raw bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "frametruth-cnn", f.DetectorName)
	assert.InDelta(t, 0.93, f.Score, 1e-9)
}

func TestRemoteAnalyzer_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := detection.NewRemoteAnalyzer(srv.URL).Analyze(context.Background(), strings.NewReader("x"), "")
	assert.Error(t, err)
}
