// Package localdb keeps device state and offline event documents in SQLite.
package localdb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store"
)

//go:embed schema.sql
var schemaSQL string

// IDPrefix marks documents that only exist on this device
const IDPrefix = "local_"

// DB is a SQLite database holding the kv table and the local document store
type DB struct {
	db *sql.DB
}

// Documents is the DocumentStore view of a DB
type Documents struct {
	db *sql.DB
}

var _ store.DocumentStore = (*Documents)(nil)

// Open creates or opens the database at path and applies the schema.
// Safe to call on an existing file.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Documents returns the event document store kept in this database
func (d *DB) Documents() *Documents {
	return &Documents{db: d.db}
}

// IsLocalID reports whether id names a document created by this store
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}

// Get returns the value stored under key
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value
func (d *DB) Set(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Latest returns the stored document
func (d *Documents) Latest(ctx context.Context, id string) (*model.Envelope, error) {
	var body string
	err := d.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}

	var rec model.EventRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	rec.Normalize()
	return &model.Envelope{Record: rec, Metadata: model.Metadata{ID: id}}, nil
}

// Create stores rec under a fresh local id
func (d *Documents) Create(ctx context.Context, rec model.EventRecord) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	id := IDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if _, err := d.db.ExecContext(ctx, `INSERT INTO documents (id, body) VALUES (?, ?)`, id, string(body)); err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

// Replace overwrites an existing document
func (d *Documents) Replace(ctx context.Context, id string, rec model.EventRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		string(body), id)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

// Delete removes a document
func (d *Documents) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return nil
}
