package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"frametruth/pkg/platform/circuit"
)

// ErrDetectorUnavailable is returned while the detector's circuit is open.
// Callers treat analysis as best-effort, so this only skips scoring.
var ErrDetectorUnavailable = errors.New("detector circuit open")

// RemoteAnalyzer calls the external forgery-detection model over HTTP. The
// model is a black box: content in, score out. A circuit breaker tracks
// consecutive failures so a down detector is reported as one known
// degradation; uploads keep flowing unscored either way.
type RemoteAnalyzer struct {
	endpoint string
	client   *http.Client
	breaker  *circuit.Breaker
}

func NewRemoteAnalyzer(endpoint string) *RemoteAnalyzer {
	return &RemoteAnalyzer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		breaker:  circuit.New("detector"),
	}
}

type remoteVerdict struct {
	Detector string  `json:"detector"`
	Version  string  `json:"version"`
	Score    float64 `json:"score"`
	Label    string  `json:"label"`
}

// Analyze runs one detection request. Outcomes feed the breaker; once it
// opens, errors collapse into ErrDetectorUnavailable so callers log a
// known degradation instead of a fresh failure per upload. The request is
// still attempted, which is what eventually closes the circuit again.
func (a *RemoteAnalyzer) Analyze(ctx context.Context, content io.Reader, mimeType string) (Finding, error) {
	degraded := a.breaker.IsOpen()

	finding, err := a.call(ctx, content, mimeType)
	if err != nil {
		a.breaker.RecordFailure()
		if degraded {
			return Finding{}, ErrDetectorUnavailable
		}
		return Finding{}, err
	}
	a.breaker.RecordSuccess()
	return finding, nil
}

func (a *RemoteAnalyzer) call(ctx context.Context, content io.Reader, mimeType string) (Finding, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, content)
	if err != nil {
		return Finding{}, fmt.Errorf("build analyze request: %w", err)
	}
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Finding{}, fmt.Errorf("call detector: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Finding{}, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	var verdict remoteVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Finding{}, fmt.Errorf("decode detector verdict: %w", err)
	}
	return Finding{
		DetectorName:    verdict.Detector,
		DetectorVersion: verdict.Version,
		Score:           verdict.Score,
		Label:           verdict.Label,
	}, nil
}
