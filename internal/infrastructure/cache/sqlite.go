package cache

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteCache is the cross-run sentiment cache, keyed by content hash.
// It lives in a local sqlite file next to the other data artifacts; a
// missing file is created empty, never an error.
type SQLiteCache struct {
	db *sql.DB
}

var _ ports.SentimentCache = (*SQLiteCache)(nil)

// Open creates or opens the cache file and ensures the schema.
func Open(path string) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	// Pragmas for performance + concurrency.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get looks up one scored hash.
func (c *SQLiteCache) Get(hash string) (ports.SentimentResult, bool, error) {
	var res ports.SentimentResult
	var label string

	err := c.db.QueryRow(
		`SELECT score, label FROM sentiment_scores WHERE content_hash = ?`, hash,
	).Scan(&res.Score, &label)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.SentimentResult{}, false, nil
	}
	if err != nil {
		return ports.SentimentResult{}, false, fmt.Errorf("cache get: %w", err)
	}

	res.Label = domain.SentimentLabel(label)
	return res, true, nil
}

// Put upserts one scored hash.
func (c *SQLiteCache) Put(hash string, res ports.SentimentResult) error {
	_, err := c.db.Exec(
		`INSERT INTO sentiment_scores (content_hash, score, label, scored_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(content_hash) DO UPDATE SET
		 	score = excluded.score,
		 	label = excluded.label,
		 	scored_at = excluded.scored_at`,
		hash, res.Score, string(res.Label), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Close releases the sqlite handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
