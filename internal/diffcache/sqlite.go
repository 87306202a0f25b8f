package diffcache

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteCache is a Cache persisted in a single sqlite database file
type SQLiteCache struct {
	db  *sql.DB
	now func() time.Time
}

var _ Cache = (*SQLiteCache)(nil)

// OpenSQLiteCache opens (creating if needed) the cache database at path and
// drops entries that already expired.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	c := &SQLiteCache{db: db, now: time.Now}
	if err := c.Purge(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// maxKeysPerQuery keeps each lookup well under sqlite's bound-variable limit
const maxKeysPerQuery = 500

// GetKeys implements Cache
func (c *SQLiteCache) GetKeys(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	now := c.now().Unix()
	for start := 0; start < len(keys); start += maxKeysPerQuery {
		end := min(start+maxKeysPerQuery, len(keys))
		if err := c.getBatch(ctx, keys[start:end], now, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *SQLiteCache) getBatch(ctx context.Context, keys []string, now int64, result map[string]string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := "SELECT key, value FROM cache_entries WHERE key IN (" + placeholders + ") AND (expires_at = 0 OR expires_at > ?)"
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, now)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scanning cache row: %w", err)
		}
		result[key] = value
	}
	return rows.Err()
}

// SetKey implements Cache
func (c *SQLiteCache) SetKey(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = c.now().Add(ttl).Unix()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("writing cache key %s: %w", key, err)
	}
	return nil
}

// Purge deletes expired entries
func (c *SQLiteCache) Purge(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at != 0 AND expires_at <= ?", c.now().Unix())
	if err != nil {
		return fmt.Errorf("purging cache: %w", err)
	}
	return nil
}

// Close releases the database
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
