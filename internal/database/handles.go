package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetHandle returns the capability handle stored for an item. Absence is
// not an error: it returns nil, nil.
func (s *Store) GetHandle(ctx context.Context, itemID string) (*Handle, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_handle", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var h Handle
	err = s.db.QueryRowContext(ctx, "SELECT kind, data FROM handles WHERE id = ?", itemID).Scan(&h.Kind, &h.Data)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// PutHandle stores or replaces an item's capability handle.
func (s *Store) PutHandle(ctx context.Context, itemID string, h Handle) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handles (id, kind, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, data = excluded.data
	`, itemID, h.Kind, h.Data)
	recordQuery("put_handle", start, err)
	return err
}

// DeleteHandle removes an item's handle. Deleting a missing handle is a no-op.
func (s *Store) DeleteHandle(ctx context.Context, itemID string) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "DELETE FROM handles WHERE id = ?", itemID)
	recordQuery("delete_handle", start, err)
	return err
}

// DeleteAllHandles removes every stored handle.
func (s *Store) DeleteAllHandles(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "DELETE FROM handles")
	recordQuery("delete_handle", start, err)
	return err
}
