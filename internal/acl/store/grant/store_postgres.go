package grant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"frametruth/internal/acl"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
	txcontext "frametruth/pkg/platform/tx"

	"github.com/google/uuid"
)

// PostgresStore persists permission grants in PostgreSQL.
// This store is pure I/O; authorization rules (owner bypass, level ordering,
// expiry evaluation) belong in the acl service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed grant store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer returns the caller's transaction when one rides in ctx, so the file
// deletion cascade removes grants and the file row atomically.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, g acl.Grant) error {
	query := `
		INSERT INTO acl (file_id, grantee_id, level, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (file_id, grantee_id, level) DO UPDATE SET
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(g.FileID),
		uuid.UUID(g.GranteeID),
		string(g.Level),
		uuid.UUID(g.GrantedBy),
		g.GrantedAt,
		g.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, fileID id.FileID, granteeID id.UserID, level acl.Level) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM acl WHERE file_id = $1 AND grantee_id = $2 AND level = $3`,
		uuid.UUID(fileID), uuid.UUID(granteeID), string(level),
	)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete grant rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, fileID id.FileID, granteeID id.UserID) (int, error) {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM acl WHERE file_id = $1 AND grantee_id = $2`,
		uuid.UUID(fileID), uuid.UUID(granteeID),
	)
	if err != nil {
		return 0, fmt.Errorf("delete grants: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete grants rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *PostgresStore) ListForGrantee(ctx context.Context, fileID id.FileID, granteeID id.UserID) ([]acl.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, grantee_id, level, granted_by, granted_at, expires_at
		FROM acl
		WHERE file_id = $1 AND grantee_id = $2
	`, uuid.UUID(fileID), uuid.UUID(granteeID))
	if err != nil {
		return nil, fmt.Errorf("list grants for grantee: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func (s *PostgresStore) ListForFile(ctx context.Context, fileID id.FileID) ([]acl.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, grantee_id, level, granted_by, granted_at, expires_at
		FROM acl
		WHERE file_id = $1
		ORDER BY granted_at DESC
	`, uuid.UUID(fileID))
	if err != nil {
		return nil, fmt.Errorf("list grants for file: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func (s *PostgresStore) ListForUser(ctx context.Context, granteeID id.UserID) ([]acl.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, grantee_id, level, granted_by, granted_at, expires_at
		FROM acl
		WHERE grantee_id = $1
		ORDER BY granted_at DESC
	`, uuid.UUID(granteeID))
	if err != nil {
		return nil, fmt.Errorf("list grants for user: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func (s *PostgresStore) DeleteForFile(ctx context.Context, fileID id.FileID) (int, error) {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM acl WHERE file_id = $1`, uuid.UUID(fileID),
	)
	if err != nil {
		return 0, fmt.Errorf("delete grants for file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete grants for file rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM acl WHERE expires_at IS NOT NULL AND expires_at < $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired grants: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired grants rows affected: %w", err)
	}
	return int(rows), nil
}

func scanGrants(rows *sql.Rows) ([]acl.Grant, error) {
	var grants []acl.Grant
	for rows.Next() {
		var (
			g         acl.Grant
			fileID    uuid.UUID
			granteeID uuid.UUID
			grantedBy uuid.UUID
			level     string
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&fileID, &granteeID, &level, &grantedBy, &g.GrantedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.FileID = id.FileID(fileID)
		g.GranteeID = id.UserID(granteeID)
		g.GrantedBy = id.UserID(grantedBy)
		g.Level = acl.Level(level)
		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}
