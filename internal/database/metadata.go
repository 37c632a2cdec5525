package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Well-known metadata keys.
const (
	MetaLastPickedDir = "picker:last_dir"
	MetaRemoteToken   = "remote:baidu:token"
)

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		recordQuery("get_meta", start, nil)
		return "", sql.ErrNoRows
	}
	recordQuery("get_meta", start, err)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	recordQuery("set_meta", start, err)
	return err
}

// LastPickedDir returns the directory of the most recently picked local
// file, or "" when none was recorded.
func (s *Store) LastPickedDir(ctx context.Context) string {
	dir, err := s.GetMetadata(ctx, MetaLastPickedDir)
	if err != nil {
		return ""
	}
	return dir
}
