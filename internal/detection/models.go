package detection

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	id "frametruth/pkg/domain"
)

// Finding is a detector's raw verdict on one piece of content.
type Finding struct {
	DetectorName    string
	DetectorVersion string
	Score           float64
	Label           string
}

// Analyzer scores content for forgery likelihood. The production analyzer
// is an external model service; it is a black box to this package.
type Analyzer interface {
	Analyze(ctx context.Context, content io.Reader, mimeType string) (Finding, error)
}

// Detection is a persisted finding bound to a file. Flagged applies the
// configured threshold at analysis time so later threshold changes don't
// silently reclassify history.
type Detection struct {
	ID              uuid.UUID
	FileID          id.FileID
	DetectorName    string
	DetectorVersion string
	Score           float64
	Label           string
	Flagged         bool
	CreatedAt       time.Time
}
