// Package db provides the SQLite connection and schema for lampd.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Sync ledger - append-only history of color transitions, for auditing only.
	// Nothing reads it back to restore state.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			color TEXT,
			edit_id TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sync_ledger_type_ts ON sync_ledger(event_type, timestamp);
		CREATE INDEX IF NOT EXISTS idx_sync_ledger_edit ON sync_ledger(edit_id) WHERE edit_id IS NOT NULL AND edit_id != '';
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
