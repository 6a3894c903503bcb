package detection

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	id "frametruth/pkg/domain"
	dErrors "frametruth/pkg/domain-errors"
	"frametruth/pkg/requestcontext"
)

const defaultFlagThreshold = 0.8

// Store persists detections. Pure I/O.
type Store interface {
	Save(ctx context.Context, d Detection) error
	ListForFile(ctx context.Context, fileID id.FileID) ([]Detection, error)
	DeleteForFile(ctx context.Context, fileID id.FileID) (int, error)
}

// Service runs the analyzer over uploaded content and records the verdict.
type Service struct {
	analyzer  Analyzer
	store     Store
	threshold float64
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithFlagThreshold overrides the score at or above which a detection is
// flagged.
func WithFlagThreshold(threshold float64) Option {
	return func(s *Service) { s.threshold = threshold }
}

func New(analyzer Analyzer, store Store, opts ...Option) (*Service, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if store == nil {
		return nil, errors.New("detection store is required")
	}
	svc := &Service{analyzer: analyzer, store: store, threshold: defaultFlagThreshold}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Analyze scores the content and persists the detection. Analyzer failures
// surface as unavailable, not as a clean verdict.
func (s *Service) Analyze(ctx context.Context, fileID id.FileID, content io.Reader, mimeType string) (Detection, error) {
	finding, err := s.analyzer.Analyze(ctx, content, mimeType)
	if err != nil {
		return Detection{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "content analysis failed")
	}

	d := Detection{
		ID:              uuid.New(),
		FileID:          fileID,
		DetectorName:    finding.DetectorName,
		DetectorVersion: finding.DetectorVersion,
		Score:           finding.Score,
		Label:           finding.Label,
		Flagged:         finding.Score >= s.threshold,
		CreatedAt:       requestcontext.Now(ctx),
	}
	if err := s.store.Save(ctx, d); err != nil {
		return Detection{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist detection failed")
	}

	if d.Flagged && s.logger != nil {
		s.logger.WarnContext(ctx, "content flagged by detector",
			"file_id", fileID.String(),
			"detector", d.DetectorName,
			"score", d.Score,
		)
	}
	return d, nil
}

// ListForFile returns all detections recorded for a file, newest first.
func (s *Service) ListForFile(ctx context.Context, fileID id.FileID) ([]Detection, error) {
	detections, err := s.store.ListForFile(ctx, fileID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list detections failed")
	}
	return detections, nil
}

// RemoveForFile deletes a file's detections, joining the caller's
// transaction when one is in ctx.
func (s *Service) RemoveForFile(ctx context.Context, fileID id.FileID) (int, error) {
	return s.store.DeleteForFile(ctx, fileID)
}

// unscored is the neutral verdict when no model endpoint is configured.
var unscored = Finding{
	DetectorName:    "none",
	DetectorVersion: "0",
	Score:           0,
	Label:           "unscored",
}

// NoopAnalyzer records uploads without scoring them. Used when the model
// endpoint is not configured; every detection comes back unflagged.
type NoopAnalyzer struct{}

func (NoopAnalyzer) Analyze(ctx context.Context, content io.Reader, _ string) (Finding, error) {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return Finding{}, err
	}
	return unscored, nil
}
