package pgutil

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"github.com/apmfree78/snipper-sub000/pkg/config"
)

const (
	testImage    = "postgres:16-alpine"
	testDatabase = "sniper_test"
	testUser     = "sniper"
	testPassword = "sniper"

	connectAttempts = 8
)

// RequireDockerAccess skips the test when no docker daemon socket answers.
func RequireDockerAccess(t *testing.T) {
	t.Helper()

	for _, sock := range []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	} {
		conn, err := (&net.Dialer{Timeout: time.Second}).Dial("unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}
	t.Skip("docker daemon is not reachable, skipping ledger database test")
}

// SetupTestDB starts a throwaway postgres container and connects to it.
// The returned func closes the handle and terminates the container.
func SetupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()
	RequireDockerAccess(t)
	ctx := context.Background()

	container, cfg := startPostgres(ctx, t)

	var (
		db  *bun.DB
		err error
	)
	for attempt := range connectAttempts {
		if db, err = ConnectDB(ctx, cfg); err == nil {
			break
		}
		time.Sleep(time.Duration(100<<attempt) * time.Millisecond)
	}
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		t.Fatalf("connect to test database: %v", err)
	}

	return db, func() {
		_ = db.Close()
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	}
}

func startPostgres(ctx context.Context, t *testing.T) (*postgres.PostgresContainer, *config.DatabaseConfig) {
	t.Helper()

	container, err := postgres.Run(ctx, testImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		t.Fatalf("postgres container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		t.Fatalf("postgres container port: %v", err)
	}

	return container, &config.DatabaseConfig{
		Host:         host,
		Port:         port.Int(),
		User:         testUser,
		Password:     testPassword,
		Database:     testDatabase,
		SSLMode:      "disable",
		MaxOpenConns: 4,
	}
}

func exists(t *testing.T, db *bun.DB, query string, args ...any) bool {
	t.Helper()
	var found bool
	if err := db.NewSelect().ColumnExpr("EXISTS ("+query+")", args...).Scan(context.Background(), &found); err != nil {
		t.Fatalf("existence query failed: %v", err)
	}
	return found
}

const (
	tableQuery = "SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?"
	indexQuery = "SELECT 1 FROM pg_indexes WHERE schemaname = 'public' AND indexname = ?"
)

// AssertTableExists fails the test when the public table is missing.
func AssertTableExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if !exists(t, db, tableQuery, table) {
		t.Errorf("table %s does not exist", table)
	}
}

// AssertTableNotExists fails the test when the public table is present.
func AssertTableNotExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if exists(t, db, tableQuery, table) {
		t.Errorf("table %s should not exist", table)
	}
}

// AssertIndexExists fails the test when the index is missing.
func AssertIndexExists(t *testing.T, db *bun.DB, index string) {
	t.Helper()
	if !exists(t, db, indexQuery, index) {
		t.Errorf("index %s does not exist", index)
	}
}
