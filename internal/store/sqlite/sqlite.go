// Package sqlite stores record collections in a single SQLite file.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
)

const busyTimeoutMs = 5000

// Records live in one table keyed by (collection, id); every secondary index
// value is a row in rs_index_entries.
const schema = `
CREATE TABLE IF NOT EXISTS rs_collections (
    name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS rs_indexes (
    collection TEXT NOT NULL,
    name TEXT NOT NULL,
    field TEXT NOT NULL,
    PRIMARY KEY (collection, name)
);
CREATE TABLE IF NOT EXISTS rs_records (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (collection, id)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS rs_index_entries (
    collection TEXT NOT NULL,
    index_name TEXT NOT NULL,
    value TEXT NOT NULL,
    id TEXT NOT NULL,
    PRIMARY KEY (collection, index_name, value, id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_rs_index_entries_record ON rs_index_entries(collection, id);
`

var pragmas = []string{
	fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs),
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = FULL",
	"PRAGMA temp_store = MEMORY",
}

// Engine is the SQLite-backed record engine.
type Engine struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the database file at path. Any failure
// to create, open or initialise the file is reported as ErrStorageUnavailable.
func Open(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return nil, recordstore.Unavailable("sqlite", errors.New("path is empty"))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, recordstore.Unavailable("sqlite", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, recordstore.Unavailable("sqlite", err)
	}

	// Ensure per-connection PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, closeWith(db, fmt.Errorf("ping: %w", err))
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return nil, closeWith(db, fmt.Errorf("apply pragmas: %w", err))
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, closeWith(db, fmt.Errorf("create tables: %w", err))
	}

	return &Engine{db: db, path: path}, nil
}

func closeWith(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close: %w", closeErr))
	}
	return recordstore.Unavailable("sqlite", err)
}

func (e *Engine) Name() string { return "sqlite" }

// Path returns the database file location.
func (e *Engine) Path() string { return e.path }

// SchemaVersion reads PRAGMA user_version.
func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := e.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("sqlite: %w", err)
	}
	return version, nil
}

func (e *Engine) Begin(ctx context.Context, mode recordstore.Mode) (recordstore.EngineTx, error) {
	sqlTx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: mode == recordstore.ReadOnly})
	if err != nil {
		return nil, recordstore.Unavailable("sqlite", err)
	}
	return &tx{ctx: ctx, tx: sqlTx}, nil
}

func (e *Engine) Close() error { return e.db.Close() }

type tx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *tx) exec(query string, args ...any) error {
	_, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (t *tx) requireCollection(name string) error {
	ok, err := t.HasCollection(name)
	if err != nil {
		return err
	}
	if !ok {
		return recordstore.UnknownCollection(name)
	}
	return nil
}

func (t *tx) Collections() ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT name FROM rs_collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (t *tx) HasCollection(name string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM rs_collections WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: %w", err)
	}
	return n > 0, nil
}

func (t *tx) CreateCollection(name string) error {
	return t.exec("INSERT INTO rs_collections (name) VALUES (?)", name)
}

func (t *tx) Indexes(collection string) ([]recordstore.Index, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT name, field FROM rs_indexes WHERE collection = ? ORDER BY name", collection)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []recordstore.Index
	for rows.Next() {
		var idx recordstore.Index
		if err := rows.Scan(&idx.Name, &idx.Field); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (t *tx) CreateIndex(collection string, idx recordstore.Index) error {
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	return t.exec("INSERT INTO rs_indexes (collection, name, field) VALUES (?, ?, ?)",
		collection, idx.Name, idx.Field)
}

// SetSchemaVersion writes user_version inside the open transaction so the
// stamp commits with the migration step.
func (t *tx) SetSchemaVersion(v int) error {
	return t.exec(fmt.Sprintf("PRAGMA user_version = %d", v))
}

func (t *tx) Get(collection, key string) ([]byte, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	var body string
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT body FROM rs_records WHERE collection = ? AND id = ?", collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recordstore.NotFound(collection, key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return []byte(body), nil
}

func (t *tx) GetAll(collection string) ([]recordstore.Entry, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	return t.query("SELECT id, body FROM rs_records WHERE collection = ? ORDER BY id", collection)
}

func (t *tx) GetByIndex(collection, index, value string) ([]recordstore.Entry, error) {
	if err := t.requireCollection(collection); err != nil {
		return nil, err
	}
	return t.query(`
		SELECT r.id, r.body
		FROM rs_index_entries e
		JOIN rs_records r ON r.collection = e.collection AND r.id = e.id
		WHERE e.collection = ? AND e.index_name = ? AND e.value = ?
		ORDER BY r.id`, collection, index, value)
}

func (t *tx) query(q string, args ...any) ([]recordstore.Entry, error) {
	rows, err := t.tx.QueryContext(t.ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []recordstore.Entry
	for rows.Next() {
		var (
			e    recordstore.Entry
			body string
		)
		if err := rows.Scan(&e.Key, &body); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		e.Body = []byte(body)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *tx) Put(collection, key string, body []byte, entries map[string][]string) error {
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	if !json.Valid(body) {
		return fmt.Errorf("sqlite: record %s/%s is not valid JSON", collection, key)
	}
	if err := t.exec(`
		INSERT INTO rs_records (collection, id, body) VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body`,
		collection, key, string(body)); err != nil {
		return err
	}
	if err := t.exec("DELETE FROM rs_index_entries WHERE collection = ? AND id = ?", collection, key); err != nil {
		return err
	}
	for index, values := range entries {
		for _, v := range values {
			if err := t.exec(`
				INSERT OR IGNORE INTO rs_index_entries (collection, index_name, value, id)
				VALUES (?, ?, ?, ?)`, collection, index, v, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *tx) Delete(collection, key string) error {
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	if err := t.exec("DELETE FROM rs_index_entries WHERE collection = ? AND id = ?", collection, key); err != nil {
		return err
	}
	return t.exec("DELETE FROM rs_records WHERE collection = ? AND id = ?", collection, key)
}

func (t *tx) Clear(collection string) error {
	if err := t.requireCollection(collection); err != nil {
		return err
	}
	if err := t.exec("DELETE FROM rs_index_entries WHERE collection = ?", collection); err != nil {
		return err
	}
	return t.exec("DELETE FROM rs_records WHERE collection = ?", collection)
}

func (t *tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (t *tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}
