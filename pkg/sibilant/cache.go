package sibilant

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ahills/sibilant/internal/compiler"
)

// Cache stores serialized bundles in a sqlite database keyed by the
// source hash and target version, so recompilation is skipped when
// neither has changed.
type Cache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS code_cache (
	hash       TEXT NOT NULL,
	target     TEXT NOT NULL,
	bundle     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (hash, target)
)`

// OpenCache opens (and initialises, if needed) the cache database at
// path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Get looks up the bundle compiled from src for target. The second
// result reports whether an entry was found.
func (c *Cache) Get(src string, target compiler.Version) (*compiler.Bundle, bool, error) {
	var blob []byte
	err := c.db.QueryRow(
		`SELECT bundle FROM code_cache WHERE hash = ? AND target = ?`,
		cacheKey(src), target.String()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	bundle, err := compiler.DeserializeBundle(blob)
	if err != nil {
		return nil, false, err
	}
	return bundle, true, nil
}

// Put stores the bundle compiled from src, replacing any previous
// entry for the same source and target.
func (c *Cache) Put(src string, target compiler.Version, bundle *compiler.Bundle) error {
	blob, err := compiler.SerializeBundle(bundle)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO code_cache (hash, target, bundle, created_at)
		 VALUES (?, ?, ?, ?)`,
		cacheKey(src), target.String(), blob, time.Now().Unix())
	return err
}
