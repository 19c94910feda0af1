// Package cachestore provides SQLite-backed named response caches.
//
// A cache is a named partition of entries keyed by absolute request URL.
// Cache names carry a version string, so replacing a deployment is done by
// opening new names and deleting the old ones.
package cachestore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS caches (
	name       TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entries (
	cache     TEXT NOT NULL REFERENCES caches(name) ON DELETE CASCADE,
	key       TEXT NOT NULL,
	status    INTEGER NOT NULL,
	header    TEXT NOT NULL DEFAULT '{}',
	body      BLOB,
	type      TEXT NOT NULL DEFAULT 'basic',
	checksum  TEXT NOT NULL DEFAULT '',
	stored_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (cache, key)
);

CREATE INDEX IF NOT EXISTS idx_entries_key ON entries(key);
`

// DB wraps a sql.DB with cache storage operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cachestore: open db: %w", err)
	}
	// One writer: concurrent puts to the same key serialize, last write wins.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cachestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cachestore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
