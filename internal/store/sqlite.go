package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added binary-collated index for ordered key listing
const currentSchemaVersion = 1

// getManyChunk bounds the number of bound parameters per IN query.
// SQLite's default limit is 999.
const getManyChunk = 500

// SQLiteKV is a KV backed by a single SQLite database file.
type SQLiteKV struct {
	db *sql.DB
}

var _ KV = (*SQLiteKV)(nil)

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteKV{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteKV) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update runs fn inside one SQL transaction.
func (s *SQLiteKV) Update(ctx context.Context, ns string, fn func(tx KVTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv update %s: begin: %w", ns, err)
	}

	stx := &sqliteTx{ctx: ctx, tx: tx, ns: ns}
	if err := fn(stx); err != nil {
		tx.Rollback()
		return fmt.Errorf("kv update %s: %w", ns, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kv update %s: commit: %w", ns, err)
	}
	return nil
}

// Keys lists keys in ns ordered by raw bytes.
func (s *SQLiteKV) Keys(ctx context.Context, ns string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM records
		WHERE namespace = ?
		ORDER BY key COLLATE BINARY ASC
	`, ns)
	if err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", ns, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("kv keys %s: scan: %w", ns, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", ns, err)
	}
	return keys, nil
}

// GetMany reads keys in chunks and aligns the results with the input.
func (s *SQLiteKV) GetMany(ctx context.Context, ns string, keys []string) ([][]byte, error) {
	found := make(map[string][]byte, len(keys))
	for start := 0; start < len(keys); start += getManyChunk {
		end := min(start+getManyChunk, len(keys))
		chunk := keys[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, ns)
		for _, k := range chunk {
			args = append(args, k)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := s.db.QueryContext(ctx,
			"SELECT key, value FROM records WHERE namespace = ? AND key IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("kv get %s: %w", ns, err)
		}
		for rows.Next() {
			var key string
			var value []byte
			if err := rows.Scan(&key, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("kv get %s: scan: %w", ns, err)
			}
			found[key] = value
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("kv get %s: %w", ns, err)
		}
	}

	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
	ns  string
}

func (t *sqliteTx) Put(key string, value []byte) error {
	if key == "" {
		return errors.New("put: empty key")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO records (namespace, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value
	`, t.ns, key, value)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (t *sqliteTx) Delete(key string) error {
	_, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM records WHERE namespace = ? AND key = ?", t.ns, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the ordered key index used by Keys.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_namespace_key
		ON records(namespace, key COLLATE BINARY)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteKV) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
