package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// JSONStore keeps the cache as one JSON object keyed by source location.
type JSONStore struct {
	Path string
}

// Load returns an empty map when the file does not exist.
func (s *JSONStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache load %s: %w", s.Path, err)
	}
	m := make(map[string]Entry)
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cache load %s: %w", s.Path, err)
	}
	return m, nil
}

// Save writes the document atomically (temp file + rename).
func (s *JSONStore) Save(m map[string]Entry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("cache save: marshal: %w", err)
	}
	return WriteFileAtomic(s.Path, data)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: create temp: %w", path, err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("write %s: %w", path, writeErr)
		}
		return fmt.Errorf("write %s: close: %w", path, closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: chmod: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: rename: %w", path, err)
	}
	return nil
}

// SQLiteStore keeps the cache as one table in a SQLite file.
type SQLiteStore struct {
	Path string
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS source_cache (
	location      TEXT PRIMARY KEY,
	fetched_at    INTEGER NOT NULL,
	body          BLOB NOT NULL,
	etag          TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT ''
)`

func (s *SQLiteStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", s.Path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache db %s: schema: %w", s.Path, err)
	}
	return db, nil
}

// Load returns an empty map when the file does not exist.
func (s *SQLiteStore) Load() (map[string]Entry, error) {
	if _, err := os.Stat(s.Path); errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT location, fetched_at, body, etag, last_modified FROM source_cache`)
	if err != nil {
		return nil, fmt.Errorf("cache db %s: query: %w", s.Path, err)
	}
	defer rows.Close()
	m := make(map[string]Entry)
	for rows.Next() {
		var (
			loc string
			ns  int64
			e   Entry
		)
		if err := rows.Scan(&loc, &ns, &e.Body, &e.ETag, &e.LastModified); err != nil {
			return nil, fmt.Errorf("cache db %s: scan: %w", s.Path, err)
		}
		e.FetchedAt = time.Unix(0, ns)
		m[loc] = e
	}
	return m, rows.Err()
}

// Save replaces the table contents in one transaction.
func (s *SQLiteStore) Save(m map[string]Entry) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("cache db %s: begin: %w", s.Path, err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM source_cache`); err != nil {
		return fmt.Errorf("cache db %s: clear: %w", s.Path, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO source_cache (location, fetched_at, body, etag, last_modified) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache db %s: prepare: %w", s.Path, err)
	}
	defer stmt.Close()
	for loc, e := range m {
		body := e.Body
		if body == nil {
			body = []byte{}
		}
		if _, err := stmt.Exec(loc, e.FetchedAt.UnixNano(), body, e.ETag, e.LastModified); err != nil {
			return fmt.Errorf("cache db %s: insert %s: %w", s.Path, loc, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache db %s: commit: %w", s.Path, err)
	}
	return nil
}
