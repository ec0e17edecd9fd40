// Package cache implements an optional disk-backed content cache sitting
// behind the in-memory LRU in internal/loader: fetched tile bytes keyed by
// content URI, so a re-run of the engine against the same tileset doesn't
// re-fetch content already on disk. Modeled on an MBTiles reader/writer
// (schema, gzip-before-store, WAL pragmas), generalized from (z,x,y)-keyed
// PNG tiles to URI-keyed arbitrary content bytes.
package cache

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is a URI-keyed, gzip-compressed content cache backed by SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens a cache database at path, initializing its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 20000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: set pragma %q: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS content (
			uri        TEXT PRIMARY KEY,
			status     INTEGER NOT NULL,
			data       BLOB NOT NULL,
			byte_size  INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the cached response for uri, and ok=false if absent.
func (s *Store) Get(uri string) (status int, data []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var compressed []byte
	err = s.db.QueryRow("SELECT status, data FROM content WHERE uri = ?", uri).Scan(&status, &compressed)
	if err == sql.ErrNoRows {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("cache: get %s: %w", uri, err)
	}

	data, err = gunzip(compressed)
	if err != nil {
		return 0, nil, false, fmt.Errorf("cache: decompress %s: %w", uri, err)
	}
	return status, data, true, nil
}

// Put stores a fetch response's status and body for uri, replacing any
// prior entry.
func (s *Store) Put(uri string, status int, data []byte) error {
	compressed, err := gzipCompress(data)
	if err != nil {
		return fmt.Errorf("cache: compress %s: %w", uri, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO content (uri, status, data, byte_size) VALUES (?, ?, ?, ?)",
		uri, status, compressed, len(data),
	)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", uri, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
