// Package store provides persistent server state backed by an embedded
// SQLite database: an audit trail of administrative actions and a
// username ban list, neither of which the wire protocol itself specifies
// a format for. Chat messages and live membership are never persisted
// here.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string, never edit or reorder existing entries.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 — server-wide settings
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v2 — audit log of admin actions
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		channel    TEXT NOT NULL,
		action     TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v3 — username bans, scoped per channel
	`CREATE TABLE IF NOT EXISTS bans (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		channel    TEXT NOT NULL,
		username   TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch()),
		UNIQUE(channel, username)
	)`,
	// v4 — indexes for the audit log's typical query pattern
	`CREATE INDEX IF NOT EXISTS idx_audit_log_channel_created ON audit_log(channel, created_at)`,
	// v5 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes the server's persisted state.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[store] applied migration v%d", v)
	}
	return nil
}

// AuditEntry is one recorded administrative action.
type AuditEntry struct {
	ID        int64
	Channel   string
	Action    string
	Target    string
	CreatedAt time.Time
}

// RecordAudit appends one entry to the audit log. Intended as the AuditFunc
// wired into every channel.
func (s *Store) RecordAudit(channel, action, target string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log(channel, action, target) VALUES(?, ?, ?)`,
		channel, action, target,
	)
	return err
}

// AuditLog returns the most recent audit entries for channel, newest first,
// bounded by limit.
func (s *Store) AuditLog(channel string, limit int) ([]AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, channel, action, target, created_at FROM audit_log
		 WHERE channel = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		channel, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Channel, &e.Action, &e.Target, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ban records that username may not join channel again.
func (s *Store) Ban(channel, username, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO bans(channel, username, reason) VALUES(?, ?, ?)
		 ON CONFLICT(channel, username) DO UPDATE SET reason = excluded.reason`,
		channel, username, reason,
	)
	return err
}

// Unban removes a previously recorded ban, if any.
func (s *Store) Unban(channel, username string) error {
	_, err := s.db.Exec(
		`DELETE FROM bans WHERE channel = ? AND username = ?`,
		channel, username,
	)
	return err
}

// IsBanned reports whether username is banned from channel.
func (s *Store) IsBanned(channel, username string) (bool, error) {
	var exists int
	err := s.db.QueryRow(
		`SELECT 1 FROM bans WHERE channel = ? AND username = ?`,
		channel, username,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetSetting returns the value stored under key. The second return value is
// false when the key does not exist; an error is only returned for real I/O
// failures.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetSetting upserts key -> value in the settings table. Used to persist
// the AFK timeout configured at startup.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Optimize runs SQLite's PRAGMA optimize, intended to be called
// periodically from a long-running server process.
func (s *Store) Optimize() error {
	_, err := s.db.Exec(`PRAGMA optimize`)
	return err
}
