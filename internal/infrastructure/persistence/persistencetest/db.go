// Package persistencetest opens migrated throwaway databases for tests.
package persistencetest

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/migrations"
	"github.com/garyjia/requisition-approval/pkg/database"
)

// Open creates a migrated SQLite database under t.TempDir and closes it
// when the test ends.
func Open(t testing.TB) *database.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Hour,
	}, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
