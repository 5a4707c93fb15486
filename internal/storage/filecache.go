// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// CONTAINER FILE CACHE
// =============================================================================

// DefaultFileTTL is how long a cached container file stays fresh. Code
// interpreter containers are short-lived upstream, so stale entries are
// worthless rather than merely old.
const DefaultFileTTL = 10 * time.Minute

// ErrFileNotCached indicates the requested file is absent or expired.
var ErrFileNotCached = errors.New("container file not cached")

// CachedFile is one container file held in the cache.
type CachedFile struct {
	FileID      string
	ContainerID string
	Filename    string
	MimeType    string
	Data        []byte
	FetchedAt   time.Time
}

// FileCache is a SQLite-backed cache for code interpreter container
// files. Containers expire upstream minutes after a run, so the proxy
// caches file bytes on first fetch and serves later views from here.
type FileCache struct {
	db  *sql.DB
	ttl time.Duration
}

const fileCacheSchema = `
CREATE TABLE IF NOT EXISTS container_files (
	file_id      TEXT PRIMARY KEY,
	container_id TEXT NOT NULL DEFAULT '',
	filename     TEXT NOT NULL DEFAULT '',
	mime_type    TEXT NOT NULL DEFAULT '',
	data         BLOB NOT NULL,
	fetched_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_container_files_fetched ON container_files(fetched_at);
`

// OpenFileCache opens (creating if needed) the cache database at path.
func OpenFileCache(path string) (*FileCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(fileCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	return &FileCache{db: db, ttl: DefaultFileTTL}, nil
}

// WithTTL overrides the freshness window. Zero or negative disables expiry.
func (fc *FileCache) WithTTL(ttl time.Duration) *FileCache {
	fc.ttl = ttl
	return fc
}

// Put stores a container file, replacing any previous entry for the same
// file ID.
func (fc *FileCache) Put(ctx context.Context, f CachedFile) error {
	if f.FileID == "" {
		return errors.New("file cache: empty file id")
	}
	fetched := f.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}

	_, err := fc.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO container_files
			(file_id, container_id, filename, mime_type, data, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.FileID, f.ContainerID, f.Filename, f.MimeType, f.Data, fetched.Unix())
	if err != nil {
		return fmt.Errorf("file cache put: %w", err)
	}
	return nil
}

// Get returns the cached file for fileID, or ErrFileNotCached when absent
// or expired. Expired rows are deleted on the way out.
func (fc *FileCache) Get(ctx context.Context, fileID string) (*CachedFile, error) {
	row := fc.db.QueryRowContext(ctx, `
		SELECT file_id, container_id, filename, mime_type, data, fetched_at
		FROM container_files WHERE file_id = ?`, fileID)

	var f CachedFile
	var fetched int64
	err := row.Scan(&f.FileID, &f.ContainerID, &f.Filename, &f.MimeType, &f.Data, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("file cache get: %w", err)
	}
	f.FetchedAt = time.Unix(fetched, 0)

	if fc.ttl > 0 && time.Since(f.FetchedAt) > fc.ttl {
		fc.db.ExecContext(ctx, `DELETE FROM container_files WHERE file_id = ?`, fileID)
		return nil, ErrFileNotCached
	}
	return &f, nil
}

// Prune removes all expired entries and returns how many were deleted.
func (fc *FileCache) Prune(ctx context.Context) (int64, error) {
	if fc.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-fc.ttl).Unix()
	res, err := fc.db.ExecContext(ctx, `DELETE FROM container_files WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("file cache prune: %w", err)
	}
	return res.RowsAffected()
}

// Len returns the number of cached entries, expired or not.
func (fc *FileCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := fc.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM container_files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("file cache count: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (fc *FileCache) Close() error {
	return fc.db.Close()
}
