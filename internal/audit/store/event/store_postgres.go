package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"frametruth/internal/audit"
	id "frametruth/pkg/domain"

	"github.com/google/uuid"
)

const defaultQueryLimit = 100
const maxQueryLimit = 1000

// PostgresStore persists the relational audit mirror in the access_log
// table. Pure I/O; fan-out policy and failure semantics live in the audit
// service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, e audit.Entry) error {
	var metadata any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		metadata = b
	}
	var fileID any
	if e.FileID != nil {
		fileID = uuid.UUID(*e.FileID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_log (actor_id, file_id, action, ip_address, user_agent, ts, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(e.ActorID), fileID, e.Action,
		nullableString(e.IPAddress), nullableString(e.UserAgent), e.OccurredAt, metadata)
	if err != nil {
		return fmt.Errorf("insert access log row: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ActorID != nil {
		conds = append(conds, "actor_id = "+arg(uuid.UUID(*f.ActorID)))
	}
	if f.FileID != nil {
		conds = append(conds, "file_id = "+arg(uuid.UUID(*f.FileID)))
	}
	if f.Action != "" {
		conds = append(conds, "action = "+arg(f.Action))
	}
	if f.From != nil {
		conds = append(conds, "ts >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "ts < "+arg(*f.To))
	}

	query := `SELECT id, actor_id, file_id, action, ip_address, user_agent, ts, metadata FROM access_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT " + arg(clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM access_log WHERE ts < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge access log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge access log rows affected: %w", err)
	}
	return int(n), nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultQueryLimit
	case limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return limit
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e         audit.Entry
			actorID   uuid.UUID
			fileID    uuid.NullUUID
			ip        sql.NullString
			userAgent sql.NullString
			metadata  []byte
		)
		if err := rows.Scan(&e.ID, &actorID, &fileID, &e.Action, &ip, &userAgent, &e.OccurredAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan access log row: %w", err)
		}
		e.ActorID = id.UserID(actorID)
		if fileID.Valid {
			fid := id.FileID(fileID.UUID)
			e.FileID = &fid
		}
		e.IPAddress = ip.String
		e.UserAgent = userAgent.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log rows: %w", err)
	}
	return entries, nil
}
