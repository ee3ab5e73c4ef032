package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// sqlitePragma is a connection setting applied on open and checked after.
// want is the value PRAGMA reports back, which differs from the assigned
// value for enums (synchronous = NORMAL reads back as 1).
type sqlitePragma struct {
	name  string
	value string
	want  string
}

var sqlitePragmas = []sqlitePragma{
	{name: "journal_mode", value: "WAL", want: "wal"},
	{name: "synchronous", value: "NORMAL", want: "1"},
	{name: "busy_timeout", value: "5000", want: "5000"},
}

// migration upgrades the schema to version. Migrations run in order, each in
// its own transaction together with the user_version bump.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "index pending lookups",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_prompts_status ON prompts(status, prompt_id)`,
	},
}

// currentSchemaVersion is the user_version of a fully migrated database.
var currentSchemaVersion = migrations[len(migrations)-1].version

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db    *sql.DB
	clock Clock
}

var _ Store = (*SQLite)(nil)

// OpenSQLite creates or opens the prompt database at path, then applies
// pragmas, the base schema and pending migrations. Safe to call on an
// existing database.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	o := buildOptions(opts)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// One writer at a time; a single connection also keeps pragmas in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, clock: o.clock}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect sqlite: %w", err)
	}
	for _, p := range sqlitePragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}
	if err := s.checkPragmas(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return s.migrate(ctx)
}

// checkPragmas confirms every pragma reads back as expected. WAL in
// particular silently stays off on filesystems that cannot support it.
func (s *SQLite) checkPragmas(ctx context.Context) error {
	for _, p := range sqlitePragmas {
		var got string
		if err := s.db.QueryRowContext(ctx, "PRAGMA "+p.name).Scan(&got); err != nil {
			return fmt.Errorf("read pragma %s: %w", p.name, err)
		}
		if got != p.want {
			return fmt.Errorf("pragma %s = %q, want %q", p.name, got, p.want)
		}
	}
	return nil
}

func (s *SQLite) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: commit: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
