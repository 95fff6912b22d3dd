// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite sources — works everywhere Go works, and ":memory:" databases
// keep the repository tests fast and hermetic.
//
// The schema carries the three invariant-bearing indexes: unique email,
// unique-sparse google_id (NULL when no Google identity is linked — SQLite
// treats NULLs as distinct, which is exactly the sparse-uniqueness we need),
// and unique referral_code. Concurrent signups serialize on these
// constraints; there is no in-process locking.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/newronx/waitlist/internal/apperror"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
// Use ":memory:" for an in-memory database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Surface a bad path or permission problem now instead of on the first
	// query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in flight — required for a web
	// server where signup inserts and stats reads overlap.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS registrants (
			id               TEXT PRIMARY KEY,
			email            TEXT NOT NULL UNIQUE,
			phone            TEXT NOT NULL DEFAULT '',
			google_id        TEXT UNIQUE,
			google_name      TEXT,
			google_picture   TEXT,
			google_email     TEXT,
			source           TEXT NOT NULL DEFAULT 'manual',
			active           INTEGER NOT NULL DEFAULT 1,
			referral_code    TEXT NOT NULL UNIQUE,
			referred_by      TEXT REFERENCES registrants(id),
			referral_count   INTEGER NOT NULL DEFAULT 0,
			referral_rewards INTEGER NOT NULL DEFAULT 0,
			joined_at        DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_registrants_joined_at ON registrants(joined_at);
		CREATE INDEX IF NOT EXISTS idx_registrants_referred_by ON registrants(referred_by);
	`)
	if err != nil {
		return fmt.Errorf("creating registrants table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS stories (
			id            TEXT PRIMARY KEY,
			registrant_id TEXT REFERENCES registrants(id),
			email         TEXT,
			name          TEXT NOT NULL DEFAULT 'Anonymous',
			story         TEXT NOT NULL,
			source        TEXT NOT NULL DEFAULT 'manual',
			status        TEXT NOT NULL DEFAULT 'pending',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_stories_status ON stories(status, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating stories table: %w", err)
	}

	return nil
}

// translateConstraint turns SQLite UNIQUE-violation errors into the typed
// apperror.Duplicate the resolver branches on. modernc.org/sqlite reports
// these as "UNIQUE constraint failed: <table>.<column>" in the error text;
// anything else passes through unchanged.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "registrants.email"):
		return apperror.Duplicate("email")
	case strings.Contains(msg, "registrants.google_id"):
		return apperror.Duplicate("google_id")
	case strings.Contains(msg, "registrants.referral_code"):
		return apperror.Duplicate("referral_code")
	}
	return err
}

// nullIfEmpty maps Go's "" zero value to SQL NULL so the sparse UNIQUE index
// on google_id only constrains rows that actually carry one.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
