package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"frametruth/internal/auth"
	id "frametruth/pkg/domain"
	"frametruth/pkg/platform/sentinel"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(u.ID), u.Username, u.PasswordHash, u.Role, u.CreatedAt, u.LastLogin)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ByUsername(ctx context.Context, username string) (auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, last_login
		FROM users WHERE username = $1
	`, username))
}

func (s *PostgresStore) ByID(ctx context.Context, userID id.UserID) (auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, last_login
		FROM users WHERE id = $1
	`, uuid.UUID(userID)))
}

func (s *PostgresStore) SetLastLogin(ctx context.Context, userID id.UserID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = $1 WHERE id = $2`, at, uuid.UUID(userID),
	)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (auth.User, error) {
	var (
		u         auth.User
		userID    uuid.UUID
		lastLogin sql.NullTime
	)
	err := row.Scan(&userID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.ID = id.UserID(userID)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}
