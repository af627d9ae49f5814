// Package repotest provides a migrated SQLite database for tests.
package repotest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/moodi-org/pass-backend/internal/config"
	"github.com/moodi-org/pass-backend/internal/repository"
)

// NewSQLite opens a fresh, fully migrated SQLite database in a temp dir
func NewSQLite(t testing.TB) *sqlx.DB {
	t.Helper()

	cfg := &config.Config{
		DBDriver:     config.DriverSQLite,
		DBSQLitePath: filepath.Join(t.TempDir(), "passes.db"),
	}

	if err := repository.Migrate(cfg.DBDriver, cfg.MigrationURL()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := config.OpenDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewRepository returns a participant repository over NewSQLite
func NewRepository(t testing.TB) *repository.ParticipantRepository {
	t.Helper()
	return repository.NewParticipantRepository(NewSQLite(t))
}
