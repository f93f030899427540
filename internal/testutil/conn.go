// Package testutil provides database fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

var (
	serverOnce sync.Once
	serverURL  string
	serverErr  error

	dbSeq atomic.Int64
)

// ServerURL returns the URL of a PostgreSQL server for integration tests.
// DATABASE_URL is used when set; otherwise a container is started once and
// shared by every test in the run. Tests are skipped in short mode.
func ServerURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}

	serverOnce.Do(func() {
		serverURL, serverErr = startContainer(context.Background())
	})
	if serverErr != nil {
		t.Skipf("postgres container unavailable: %v", serverErr)
	}
	return serverURL
}

func startContainer(ctx context.Context) (string, error) {
	c, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("postgres"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start postgres container: %w", err)
	}
	return c.ConnectionString(ctx, "sslmode=disable")
}

// FreshDatabase creates an empty database on the test server and returns its
// URL. The database is dropped when the test finishes.
func FreshDatabase(t *testing.T) string {
	t.Helper()

	server := ServerURL(t)
	ctx := context.Background()

	name := fmt.Sprintf("schemapool_test_%d_%d", os.Getpid(), dbSeq.Add(1))
	admin := Connect(t, server)
	_, err := admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	require.NoError(t, err, "failed to create test database")

	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(),
			"DROP DATABASE IF EXISTS "+pgx.Identifier{name}.Sanitize()+" WITH (FORCE)")
	})

	u, err := url.Parse(server)
	require.NoError(t, err)
	u.Path = "/" + name
	return u.String()
}

// Connect opens a single connection closed at the end of the test.
func Connect(t *testing.T, connString string) *pgx.Conn {
	t.Helper()

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connString)
	require.NoError(t, err, "failed to connect")

	t.Cleanup(func() {
		_ = conn.Close(context.Background())
	})
	return conn
}

// SchemaExists reports whether schema exists in the database conn points at.
func SchemaExists(t *testing.T, conn *pgx.Conn, schema string) bool {
	t.Helper()

	var exists bool
	err := conn.
		QueryRow(context.Background(), "SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", schema).
		Scan(&exists)
	require.NoError(t, err)
	return exists
}
