package testdb

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/selivandex/trader-core/internal/adapters/database"
)

// Setup connects to TEST_DATABASE_URL and applies migrations.
// Tests are skipped when the variable is not set.
func Setup(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := database.RunMigrations(db.DB, MigrationsPath()); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close database: %v", err)
		}
	})

	return db
}

// MigrationsPath resolves the repository migrations directory
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
}

// CleanupGuard removes every row written for guardID once the test ends
func CleanupGuard(t *testing.T, db *sqlx.DB, guardID string) {
	t.Helper()

	t.Cleanup(func() {
		for _, table := range []string{"risk_events", "risk_guard_state"} {
			if _, err := db.Exec("DELETE FROM "+table+" WHERE guard_id = $1", guardID); err != nil {
				t.Logf("warning: failed to clean %s: %v", table, err)
			}
		}
	})
}
