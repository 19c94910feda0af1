package cachestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/starford/vaultlinks/internal/checksum"
)

// Open creates the named cache if it does not exist yet.
func (db *DB) Open(ctx context.Context, name string) error {
	if _, err := db.conn.ExecContext(ctx, `INSERT OR IGNORE INTO caches (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("cachestore: open cache %s: %w", name, err)
	}
	return nil
}

// Names returns every cache name in creation order.
func (db *DB) Names(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM caches ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("cachestore: names: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteCache removes a cache and all of its entries. It reports whether the
// cache existed.
func (db *DB) DeleteCache(ctx context.Context, name string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("cachestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache = ?`, name); err != nil {
		return false, fmt.Errorf("cachestore: delete entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("cachestore: delete cache %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, tx.Commit()
}

// Put stores e under (cache, e.Key), replacing any previous entry.
func (db *DB) Put(ctx context.Context, cache string, e Entry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cachestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO caches (name) VALUES (?)`, cache); err != nil {
		return fmt.Errorf("cachestore: ensure cache %s: %w", cache, err)
	}

	header := e.Header
	if header == nil {
		header = http.Header{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("cachestore: encode header: %w", err)
	}
	typ := e.Type
	if typ == "" {
		typ = TypeBasic
	}
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (cache, key, status, header, body, type, checksum, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache, key) DO UPDATE SET
			status    = excluded.status,
			header    = excluded.header,
			body      = excluded.body,
			type      = excluded.type,
			checksum  = excluded.checksum,
			stored_at = excluded.stored_at
	`, cache, e.Key, e.Status, string(headerJSON), e.Body, typ, checksum.Sum(e.Body), storedAt)
	if err != nil {
		return fmt.Errorf("cachestore: put %s: %w", e.Key, err)
	}
	return tx.Commit()
}

const selectEntry = `SELECT e.cache, e.key, e.status, e.header, e.body, e.type, e.checksum, e.stored_at FROM entries e`

// Match returns the entry for key in the named cache, or nil if there is none.
func (db *DB) Match(ctx context.Context, cache, key string) (*Entry, error) {
	row := db.conn.QueryRowContext(ctx, selectEntry+` WHERE e.cache = ? AND e.key = ?`, cache, key)
	return scanEntry(row)
}

// MatchAny searches every cache in creation order and returns the first entry
// for key, or nil if no cache holds one.
func (db *DB) MatchAny(ctx context.Context, key string) (*Entry, error) {
	row := db.conn.QueryRowContext(ctx, selectEntry+`
		JOIN caches c ON c.name = e.cache
		WHERE e.key = ?
		ORDER BY c.rowid
		LIMIT 1`, key)
	return scanEntry(row)
}

// Delete removes a single entry and reports whether it existed.
func (db *DB) Delete(ctx context.Context, cache, key string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE cache = ? AND key = ?`, cache, key)
	if err != nil {
		return false, fmt.Errorf("cachestore: delete %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Keys returns every key stored in the named cache.
func (db *DB) Keys(ctx context.Context, cache string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key FROM entries WHERE cache = ? ORDER BY key`, cache)
	if err != nil {
		return nil, fmt.Errorf("cachestore: keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var (
		e          Entry
		headerJSON string
	)
	err := row.Scan(&e.Cache, &e.Key, &e.Status, &headerJSON, &e.Body, &e.Type, &e.Checksum, &e.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cachestore: scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(headerJSON), &e.Header); err != nil {
		return nil, fmt.Errorf("cachestore: decode header: %w", err)
	}
	return &e, nil
}
