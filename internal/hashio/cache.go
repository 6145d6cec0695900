package hashio

import (
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DigestCache caches file digests keyed by (path, size, mtime) so that
// repeated status checks skip rehashing unchanged files.
type DigestCache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS digest_cache (
	path TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	digest TEXT NOT NULL
);
`

// OpenCache opens or creates a digest cache database at dbPath.
func OpenCache(dbPath string) (*DigestCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &DigestCache{db: db}, nil
}

// Close closes the cache database.
func (c *DigestCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached digest for path if (size, mtime) still match.
// Returns empty string when not cached or stale.
func (c *DigestCache) Get(path string, info fs.FileInfo) (string, error) {
	var size, mtime int64
	var digest string
	err := c.db.QueryRow(
		"SELECT size, mtime, digest FROM digest_cache WHERE path = ?", path,
	).Scan(&size, &mtime, &digest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if size == info.Size() && mtime == info.ModTime().UnixNano() {
		return digest, nil
	}
	return "", nil
}

// Put stores a digest for path under its current (size, mtime).
func (c *DigestCache) Put(path string, info fs.FileInfo, digest string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO digest_cache (path, size, mtime, digest) VALUES (?, ?, ?, ?)`,
		path, info.Size(), info.ModTime().UnixNano(), digest,
	)
	return err
}

// Clear removes all cache entries.
func (c *DigestCache) Clear() error {
	_, err := c.db.Exec("DELETE FROM digest_cache")
	return err
}
