package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DefaultQuotaBytes matches the capacity browsers give local storage
const DefaultQuotaBytes = 5 * 1024 * 1024

// KVStore is the synchronous local key-value boundary. Get returns ok=false
// for a missing key.
type KVStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// SQLiteKV is a KVStore backed by a single SQLite table, bounded by a byte
// quota over the sum of key and value lengths.
type SQLiteKV struct {
	db    *sql.DB
	quota int64
	mu    sync.Mutex
}

// OpenDatabase opens (creating if needed) the SQLite file at path
func OpenDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases coherent and writes serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

// NewSQLiteKV prepares the kv table on db. A quota <= 0 means unbounded.
func NewSQLiteKV(db *sql.DB, quota int64) (*SQLiteKV, error) {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, &StorageError{Key: "kv", Op: "open", Err: err}
	}
	return &SQLiteKV{db: db, quota: quota}, nil
}

// OpenSQLiteKV opens path and wraps it as a KVStore
func OpenSQLiteKV(path string, quota int64) (*SQLiteKV, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	kv, err := NewSQLiteKV(db, quota)
	if err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

// Get returns the value stored under key
func (s *SQLiteKV) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Key: key, Op: "get", Err: err}
	}
	return value, true, nil
}

// Set stores value under key, failing with ErrQuotaExceeded when the new
// total would exceed the quota.
func (s *SQLiteKV) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		used, err := s.usageExcluding(key)
		if err != nil {
			return &StorageError{Key: key, Op: "set", Err: err}
		}
		if used+int64(len(key)+len(value)) > s.quota {
			return &StorageError{Key: key, Op: "set", Err: ErrQuotaExceeded}
		}
	}

	_, err := s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return &StorageError{Key: key, Op: "set", Err: err}
	}
	return nil
}

// Remove deletes key; removing a missing key is not an error
func (s *SQLiteKV) Remove(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return &StorageError{Key: key, Op: "remove", Err: err}
	}
	return nil
}

// Keys lists stored keys matching a LIKE pattern
func (s *SQLiteKV) Keys(pattern string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM kv WHERE key LIKE ? ORDER BY key", pattern)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return keys, nil
}

// Usage returns the bytes counted against the quota
func (s *SQLiteKV) Usage() (int64, error) {
	return s.usageExcluding("")
}

func (s *SQLiteKV) usageExcluding(key string) (int64, error) {
	var used sql.NullInt64
	err := s.db.QueryRow(
		"SELECT SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))) FROM kv WHERE key != ?", key,
	).Scan(&used)
	if err != nil {
		return 0, err
	}
	return used.Int64, nil
}

// Close closes the underlying database
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
