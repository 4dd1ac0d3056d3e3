// Package store provides persistence for Anna's learning state, local model
// configuration and memories using SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a single-row record has never been saved.
var ErrNotFound = errors.New("not found")

// Store manages Anna's persistence in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serialises writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bootstrap_state (
			id              INTEGER PRIMARY KEY CHECK (id = 1),
			phase           TEXT NOT NULL DEFAULT 'not_started',
			start_time      DATETIME,
			end_time        DATETIME,
			use_mentor      INTEGER NOT NULL DEFAULT 1,
			mentor_sessions INTEGER NOT NULL DEFAULT 0,
			updated_at      DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS vocabulary (
			word       TEXT NOT NULL,
			language   TEXT NOT NULL,
			domain     TEXT NOT NULL DEFAULT '',
			learned_at DATETIME NOT NULL,
			PRIMARY KEY (word, language)
		);

		CREATE TABLE IF NOT EXISTS knowledge (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			domain     TEXT NOT NULL,
			source     TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			summary    TEXT NOT NULL DEFAULT '',
			learned_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS domains_completed (
			domain_id    TEXT PRIMARY KEY,
			completed_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS local_model (
			id              INTEGER PRIMARY KEY CHECK (id = 1),
			model_type      TEXT NOT NULL DEFAULT 'none',
			model_name      TEXT NOT NULL DEFAULT '',
			model_path      TEXT NOT NULL DEFAULT '',
			temperature     REAL NOT NULL DEFAULT 0.7,
			max_tokens      INTEGER NOT NULL DEFAULT 500,
			top_p           REAL NOT NULL DEFAULT 0.9,
			queries         INTEGER NOT NULL DEFAULT 0,
			tokens          INTEGER NOT NULL DEFAULT 0,
			avg_response_ms REAL NOT NULL DEFAULT 0,
			last_used       DATETIME,
			updated_at      DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS memories (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL DEFAULT '',
			kind            TEXT NOT NULL,
			content         TEXT NOT NULL,
			speaker         TEXT NOT NULL DEFAULT '',
			importance      INTEGER NOT NULL DEFAULT 3,
			tags            TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
		CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
		CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
		CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id);

		CREATE TABLE IF NOT EXISTS concepts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL UNIQUE,
			definition    TEXT NOT NULL DEFAULT '',
			source        TEXT NOT NULL DEFAULT '',
			confidence    REAL NOT NULL DEFAULT 1.0,
			usage_count   INTEGER NOT NULL DEFAULT 0,
			first_learned DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS consolidations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			period_start DATETIME NOT NULL,
			period_end   DATETIME NOT NULL,
			summary      TEXT NOT NULL,
			key_events   TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL
		);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SizeBytes returns the size of the main database file.
func (s *Store) SizeBytes() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

const backupPrefix = "anna-backup-"

// Backup writes a consistent copy of the database into dir and removes the
// oldest copies so that at most keep remain. It returns the new file path.
func (s *Store) Backup(ctx context.Context, dir string, keep int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	name := backupPrefix + time.Now().UTC().Format("20060102-150405.000000000") + ".db"
	dst := filepath.Join(dir, name)
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return "", fmt.Errorf("backing up database: %w", err)
	}

	if keep > 0 {
		if err := rotateBackups(dir, keep); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// Backups lists backup files in dir, oldest first.
func Backups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		names = append(names, filepath.Join(dir, e.Name()))
	}
	sort.Strings(names)
	return names, nil
}

func rotateBackups(dir string, keep int) error {
	names, err := Backups(dir)
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}
	if len(names) <= keep {
		return nil
	}
	for _, old := range names[:len(names)-keep] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("removing old backup: %w", err)
		}
	}
	return nil
}

// --- Scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
