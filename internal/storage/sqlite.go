package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kalambet/contec/internal/knowledge"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time check that Store implements knowledge.Store.
var _ knowledge.Store = (*Store)(nil)

// Store keeps the knowledge base in SQLite, one row per entry in base order.
type Store struct {
	db *sql.DB

	// corrupt is set when Open found an unreadable database file and moved
	// it aside. Load reports it until the next successful Save.
	corrupt atomic.Pointer[knowledge.CorruptError]
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
//
// A file that SQLite rejects as corrupt or not a database is renamed to
// contec.db.corrupt and a fresh database is created in its place.
func Open(dataDir string) (*Store, error) {
	if dataDir == ":memory:" {
		return openDSN(":memory:")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "contec.db")

	s, err := openDSN(path)
	if err == nil || !isCorrupt(err) {
		return s, err
	}

	aside := path + ".corrupt"
	if rerr := os.Rename(path, aside); rerr != nil {
		return nil, fmt.Errorf("moving corrupt database aside: %w", rerr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(path + suffix)
	}
	slog.Warn("sqlite knowledge base corrupt, starting fresh", "path", path, "moved_to", aside, "error", err)

	s, oerr := openDSN(path)
	if oerr != nil {
		return nil, oerr
	}
	s.corrupt.Store(&knowledge.CorruptError{Source: path, Err: err})
	return s, nil
}

func openDSN(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: writers are serialized and :memory: stays one database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// isCorrupt reports whether err is SQLite refusing the file itself.
func isCorrupt(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return true
	}
	return false
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded migrations newer than anything recorded in
// schema_version, each in its own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	applied, err := s.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("reading schema_version: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	pending, err := embeddedMigrations()
	if err != nil {
		return err
	}
	for _, m := range pending {
		if done[m.version] {
			continue
		}
		if err := s.apply(m); err != nil {
			return err
		}
		slog.Debug("applied migration", "version", m.version, "name", m.name)
	}
	return nil
}

type migration struct {
	version int
	name    string
	sql     string
}

// embeddedMigrations returns migrations/NNN_*.sql sorted by version.
func embeddedMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(e.Name(), "%d_", &version); err != nil {
			return nil, fmt.Errorf("parsing migration version from %q: %w", e.Name(), err)
		}
		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{version: version, name: e.Name(), sql: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (s *Store) apply(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("applying migration %s: %w", m.name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("recording migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Knowledge base ---

func (s *Store) Load(ctx context.Context) (knowledge.Base, error) {
	if ce := s.corrupt.Load(); ce != nil {
		return knowledge.Base{}, ce
	}
	rows, err := s.db.QueryContext(ctx, `SELECT question, answer FROM knowledge_entries ORDER BY position ASC`)
	if err != nil {
		return knowledge.Base{}, fmt.Errorf("querying knowledge entries: %w", err)
	}
	defer rows.Close()

	var b knowledge.Base
	for rows.Next() {
		var e knowledge.Entry
		if err := rows.Scan(&e.Question, &e.Answer); err != nil {
			return knowledge.Base{}, &knowledge.CorruptError{Source: "sqlite", Err: err}
		}
		b.Questions = append(b.Questions, e)
	}
	if err := rows.Err(); err != nil {
		return knowledge.Base{}, fmt.Errorf("reading knowledge entries: %w", err)
	}
	return b, nil
}

// Save replaces every entry in one transaction.
func (s *Store) Save(ctx context.Context, b knowledge.Base) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_entries`); err != nil {
		return fmt.Errorf("clearing knowledge entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO knowledge_entries (position, question, answer) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range b.Questions {
		if _, err := stmt.ExecContext(ctx, i, e.Question, e.Answer); err != nil {
			return fmt.Errorf("inserting entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing save: %w", err)
	}
	s.corrupt.Store(nil)
	return nil
}
