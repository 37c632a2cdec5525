package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rere-player/internal/logging"
	"rere-player/internal/metrics"
)

const (
	// KeyPlaylist holds the playlist array and cursor.
	KeyPlaylist = "playlist"
	// EntryKeyPrefix namespaces per-item playback states.
	EntryKeyPrefix = "entry:"
)

// EntryKey returns the kv key of an item's playback state.
func EntryKey(itemID string) string {
	return EntryKeyPrefix + itemID
}

func (s *Store) getValue(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) putValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

// persistedPlaylist mirrors PlaylistState with an optional cursor so a
// missing index defaults to -1 rather than 0.
type persistedPlaylist struct {
	Items []PlaylistItem `json:"items"`
	Index *int           `json:"index"`
}

// LoadPlaylist reads the playlist. Missing data yields EmptyPlaylist and no
// error; unparseable data yields EmptyPlaylist and an error wrapping
// ErrStoreCorrupt. Items without an id are dropped and an out-of-range
// cursor is reset to -1.
func (s *Store) LoadPlaylist(ctx context.Context) (PlaylistState, error) {
	start := time.Now()
	raw, ok, err := s.getValue(ctx, KeyPlaylist)
	recordQuery("load_playlist", start, err)
	if err != nil {
		return EmptyPlaylist(), fmt.Errorf("failed to read playlist: %w", err)
	}
	if !ok {
		return EmptyPlaylist(), nil
	}

	var p persistedPlaylist
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		metrics.StoreCorruptRecords.WithLabelValues("playlist").Inc()
		return EmptyPlaylist(), fmt.Errorf("%w: playlist: %v", ErrStoreCorrupt, err)
	}

	state := PlaylistState{Items: make([]PlaylistItem, 0, len(p.Items)), Index: -1}
	for _, item := range p.Items {
		if item.ID == "" {
			logging.Warn("Dropping persisted playlist item without id (title %q)", item.Title)
			continue
		}
		state.Items = append(state.Items, item)
	}
	if p.Index != nil && *p.Index >= 0 && *p.Index < len(state.Items) {
		state.Index = *p.Index
	}

	return state, nil
}

// SavePlaylist writes the full playlist and cursor under one key.
func (s *Store) SavePlaylist(ctx context.Context, state PlaylistState) error {
	if state.Items == nil {
		state.Items = []PlaylistItem{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode playlist: %w", err)
	}

	start := time.Now()
	err = s.putValue(ctx, KeyPlaylist, string(data))
	recordQuery("save_playlist", start, err)
	return err
}

// decodeEntry parses one entry state, applying defaults for missing or
// invalid fields.
func decodeEntry(raw string) (EntryState, error) {
	entry := DefaultEntryState()
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return DefaultEntryState(), err
	}
	if entry.Rate <= 0 {
		entry.Rate = 1
	}
	if entry.Position < 0 {
		entry.Position = 0
	}
	if entry.LoopStart != nil && entry.LoopEnd != nil && *entry.LoopEnd <= *entry.LoopStart {
		entry.LoopEnd = nil
	}
	return entry, nil
}

// LoadEntries reads every stored playback state. Corrupt rows are skipped
// and logged.
func (s *Store) LoadEntries(ctx context.Context) (map[string]EntryState, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("load_entries", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv WHERE key LIKE ?", EntryKeyPrefix+"%")
	if err != nil {
		return map[string]EntryState{}, err
	}
	defer rows.Close()

	entries := make(map[string]EntryState)
	for rows.Next() {
		var key, raw string
		if err = rows.Scan(&key, &raw); err != nil {
			return entries, err
		}
		entry, decodeErr := decodeEntry(raw)
		if decodeErr != nil {
			metrics.StoreCorruptRecords.WithLabelValues("entry").Inc()
			logging.Warn("Ignoring corrupt entry state %s: %v", key, decodeErr)
			continue
		}
		entries[strings.TrimPrefix(key, EntryKeyPrefix)] = entry
	}
	err = rows.Err()
	return entries, err
}

// SaveEntries writes a batch of playback states in one transaction.
func (s *Store) SaveEntries(ctx context.Context, entries map[string]EntryState) error {
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("save_entry", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginBatch(ctx)
	if err != nil {
		return err
	}

	for id, entry := range entries {
		var data []byte
		data, err = json.Marshal(entry)
		if err != nil {
			err = fmt.Errorf("failed to encode entry %s: %w", id, err)
			break
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, EntryKey(id), string(data))
		if err != nil {
			break
		}
	}

	err = s.endBatch(tx, err)
	return err
}

// DeleteEntries removes the playback states of the given items.
func (s *Store) DeleteEntries(ctx context.Context, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("delete_entry", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginBatch(ctx)
	if err != nil {
		return err
	}
	for _, id := range itemIDs {
		if _, err = tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", EntryKey(id)); err != nil {
			break
		}
	}
	err = s.endBatch(tx, err)
	return err
}

// DeleteAllEntries removes every stored playback state.
func (s *Store) DeleteAllEntries(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key LIKE ?", EntryKeyPrefix+"%")
	recordQuery("delete_entry", start, err)
	return err
}
