// Package modelstore persists model blobs in a local SQLite database.
package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	core "github.com/kilianp07/freightmatch/core/modelstore"
)

// SQLiteStore keeps one blob per model identifier.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS models (
        id TEXT PRIMARY KEY,
        blob BLOB NOT NULL,
        updated INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Load returns the blob saved under id or core.ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, id string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM models WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", id, err)
	}
	return blob, nil
}

// Save inserts or replaces the blob saved under id.
func (s *SQLiteStore) Save(ctx context.Context, id string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO models (id, blob, updated)
        VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            blob = excluded.blob,
            updated = excluded.updated`,
		id, blob, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save model %s: %w", id, err)
	}
	return nil
}

// Updated returns when the blob under id was last written.
func (s *SQLiteStore) Updated(ctx context.Context, id string) (time.Time, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT updated FROM models WHERE id = ?`, id).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, core.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts, 0).UTC(), nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
