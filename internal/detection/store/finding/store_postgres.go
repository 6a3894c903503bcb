package finding

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"frametruth/internal/detection"
	id "frametruth/pkg/domain"
	txcontext "frametruth/pkg/platform/tx"
)

// PostgresStore persists detections in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Save(ctx context.Context, d detection.Detection) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO detections (id, file_id, detector_name, detector_version, score, label, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, uuid.UUID(d.FileID), d.DetectorName, d.DetectorVersion, d.Score, d.Label, d.Flagged, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListForFile(ctx context.Context, fileID id.FileID) ([]detection.Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, detector_name, detector_version, score, label, flagged, created_at
		FROM detections
		WHERE file_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(fileID))
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var detections []detection.Detection
	for rows.Next() {
		var (
			d   detection.Detection
			fid uuid.UUID
		)
		if err := rows.Scan(&d.ID, &fid, &d.DetectorName, &d.DetectorVersion, &d.Score, &d.Label, &d.Flagged, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		d.FileID = id.FileID(fid)
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return detections, nil
}

func (s *PostgresStore) DeleteForFile(ctx context.Context, fileID id.FileID) (int, error) {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM detections WHERE file_id = $1`, uuid.UUID(fileID),
	)
	if err != nil {
		return 0, fmt.Errorf("delete detections: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete detections rows affected: %w", err)
	}
	return int(n), nil
}
