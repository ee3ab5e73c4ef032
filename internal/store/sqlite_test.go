package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// createTestSQLite creates a new SQLite store in a temp directory.
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	return createTestSQLiteAt(t, filepath.Join(t.TempDir(), "test.db"))
}

func createTestSQLiteAt(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='prompts'").Scan(&name)
	if err != nil {
		t.Errorf("prompts table not found after idempotent opens: %v", err)
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestSQLiteClose_NilDB(t *testing.T) {
	s := &SQLite{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestSQLitePragmas(t *testing.T) {
	s := createTestSQLite(t)

	if err := s.checkPragmas(context.Background()); err != nil {
		t.Error(err)
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestSQLiteRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	s := createTestSQLiteAt(t, path)
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion+1)); err != nil {
		t.Fatalf("bump user_version: %v", err)
	}
	s.Close()

	if _, err := OpenSQLite(path); err == nil {
		t.Error("expected error opening a database with a newer schema")
	}
}

func TestSQLiteSchemaVersion(t *testing.T) {
	s := createTestSQLite(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}

	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_prompts_status'").Scan(&name)
	if err != nil {
		t.Errorf("idx_prompts_status not found: %v", err)
	}
}

func TestSQLiteSchema_EnforcesLifecycle(t *testing.T) {
	s := createTestSQLite(t)
	ctx := context.Background()

	// completed without completed_at
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (prompt_id, prompt_text, status, created_at, completed_at)
		VALUES (1, 'x', 'completed', '2025-01-01T00:00:00Z', NULL)
	`)
	if err == nil {
		t.Error("expected CHECK failure for completed row without completed_at")
	}

	// pending with completed_at
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompts (prompt_id, prompt_text, status, created_at, completed_at)
		VALUES (2, 'x', 'pending', '2025-01-01T00:00:00Z', '2025-01-01T00:00:01Z')
	`)
	if err == nil {
		t.Error("expected CHECK failure for pending row with completed_at")
	}

	// unknown status
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompts (prompt_id, prompt_text, status, created_at, completed_at)
		VALUES (3, 'x', 'failed', '2025-01-01T00:00:00Z', NULL)
	`)
	if err == nil {
		t.Error("expected CHECK failure for unknown status")
	}
}

func TestSQLiteNextIDFollowsMax(t *testing.T) {
	s := createTestSQLite(t)
	ctx := context.Background()

	// A gap left by an external writer: next id follows the max, not the count.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (prompt_id, prompt_text, status, created_at, completed_at)
		VALUES (41, 'imported', 'pending', '2025-01-01T00:00:00Z', NULL)
	`)
	if err != nil {
		t.Fatalf("seed row: %v", err)
	}

	id, err := s.Add(ctx, "next")
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if id != 42 {
		t.Errorf("Add() id = %d, want 42", id)
	}
}
