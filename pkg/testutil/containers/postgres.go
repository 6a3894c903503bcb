//go:build integration

// Package containers provides throwaway infrastructure for integration
// tests. Containers are started per suite and torn down via t.Cleanup.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"frametruth/internal/platform/database"
)

// PostgresContainer wraps a disposable PostgreSQL instance with the schema
// already migrated.
type PostgresContainer struct {
	DB  *sql.DB
	DSN string
}

// NewPostgresContainer starts PostgreSQL, runs the migrations, and returns
// an open handle. Cleanup is registered on t.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("frametruth_test"),
		tcpostgres.WithUsername("frametruth"),
		tcpostgres.WithPassword("frametruth"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	db, err := database.OpenAndMigrate(openCtx, dsn)
	if err != nil {
		t.Fatalf("open and migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &PostgresContainer{DB: db, DSN: dsn}
}

// TruncateTables clears the listed tables between tests.
func (c *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := c.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", ")))
	return err
}
