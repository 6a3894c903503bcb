package meta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"frametruth/internal/file"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
	txcontext "frametruth/pkg/platform/tx"
)

// PostgresStore persists file metadata in PostgreSQL.
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

func (s *PostgresStore) Create(ctx context.Context, f file.File) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO files (id, owner_id, filename, storage_ref, size_bytes, mime_type, sha256, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(f.ID), uuid.UUID(f.OwnerID), f.Filename, f.StorageRef,
		f.Size, nullableString(f.MimeType), f.SHA256, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) ByID(ctx context.Context, fileID id.FileID) (file.File, error) {
	return scanFile(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, filename, storage_ref, size_bytes, mime_type, sha256, created_at
		FROM files WHERE id = $1
	`, uuid.UUID(fileID)))
}

// Owner satisfies the access controller's owner lookup without pulling the
// whole row.
func (s *PostgresStore) Owner(ctx context.Context, fileID id.FileID) (id.UserID, error) {
	var ownerID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM files WHERE id = $1`, uuid.UUID(fileID),
	).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return id.UserID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.UserID{}, fmt.Errorf("lookup file owner: %w", err)
	}
	return id.UserID(ownerID), nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.UserID) ([]file.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, filename, storage_ref, size_bytes, mime_type, sha256, created_at
		FROM files WHERE owner_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list files by owner: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (s *PostgresStore) ListByIDs(ctx context.Context, fileIDs []id.FileID) ([]file.File, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(fileIDs))
	args := make([]any, len(fileIDs))
	for i, fid := range fileIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = uuid.UUID(fid)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, owner_id, filename, storage_ref, size_bytes, mime_type, sha256, created_at
		FROM files WHERE id IN (%s)
		ORDER BY created_at DESC
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("list files by ids: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (s *PostgresStore) Delete(ctx context.Context, fileID id.FileID) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM files WHERE id = $1`, uuid.UUID(fileID),
	)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (file.Stats, error) {
	var stats file.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files`,
	).Scan(&stats.TotalFiles, &stats.TotalBytes)
	if err != nil {
		return file.Stats{}, fmt.Errorf("file stats: %w", err)
	}
	return stats, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanFile(row *sql.Row) (file.File, error) {
	var (
		f        file.File
		fileID   uuid.UUID
		ownerID  uuid.UUID
		mimeType sql.NullString
	)
	err := row.Scan(&fileID, &ownerID, &f.Filename, &f.StorageRef, &f.Size, &mimeType, &f.SHA256, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return file.File{}, sentinel.ErrNotFound
	}
	if err != nil {
		return file.File{}, fmt.Errorf("scan file: %w", err)
	}
	f.ID = id.FileID(fileID)
	f.OwnerID = id.UserID(ownerID)
	f.MimeType = mimeType.String
	return f, nil
}

func scanFiles(rows *sql.Rows) ([]file.File, error) {
	var files []file.File
	for rows.Next() {
		var (
			f        file.File
			fileID   uuid.UUID
			ownerID  uuid.UUID
			mimeType sql.NullString
		)
		if err := rows.Scan(&fileID, &ownerID, &f.Filename, &f.StorageRef, &f.Size, &mimeType, &f.SHA256, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.ID = id.FileID(fileID)
		f.OwnerID = id.UserID(ownerID)
		f.MimeType = mimeType.String
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}
