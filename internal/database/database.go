package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"rere-player/internal/logging"
	"rere-player/internal/metrics"
)

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

var (
	// ErrStoreCorrupt marks persisted data that failed to parse. Callers
	// recover by using the empty default for that domain.
	ErrStoreCorrupt = errors.New("store data corrupt")

	// ErrStoreLocked is returned when another process owns the store.
	ErrStoreLocked = errors.New("store is locked by another process")
)

// Store manages both persistence domains.
type Store struct {
	db     *sql.DB
	dbPath string
	lock   *flock.Flock
	mu     sync.RWMutex
}

// New opens (or creates) the store at dbPath. The parent directory must
// exist and be writable; startup.LoadConfig checks this before calling.
func New(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Store path: %s", dbPath)

	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock store: %w", err)
	}
	if !locked {
		return nil, ErrStoreLocked
	}

	if err := diagnoseStorePermissions(dbPath); err != nil {
		logging.Warn("Store permission diagnostics: %v", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open store: %w", err), lock.Unlock())
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect to store: %w", err), db.Close(), lock.Unlock())
	}

	// Single writer; the session serializes mutations anyway.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
		lock:   lock,
	}

	if err := s.initialize(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize store schema: %w", err), db.Close(), lock.Unlock())
	}

	logging.Info("Store initialized successfully at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	-- JSON-serializable domain
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Opaque capability handles, one per playlist item at most
	CREATE TABLE IF NOT EXISTS handles (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	start := time.Now()
	_, err := s.db.ExecContext(ctx, schema)
	recordQuery("initialize_schema", start, err)
	if err != nil {
		return err
	}

	return s.runMigrations(ctx)
}

// runMigrations applies schema migrations
func (s *Store) runMigrations(ctx context.Context) error {
	// Migration 1: kv rows carry their last write time
	var columnExists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('kv')
		WHERE name='updated_at'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for updated_at column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating store: adding updated_at column to kv table")
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE kv ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add updated_at column: %w", err)
		}
	}

	return nil
}

// Close closes the connection and releases the directory lock.
func (s *Store) Close() error {
	return errors.Join(s.db.Close(), s.lock.Unlock())
}

// beginBatch starts a transaction; endBatch commits or rolls it back.
func (s *Store) beginBatch(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) endBatch(tx *sql.Tx, err error) error {
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

// FileSizes reports the size of the store's files for metrics.
func (s *Store) FileSizes() map[string]int64 {
	sizes := make(map[string]int64, 3)
	for label, path := range map[string]string{
		"main": s.dbPath,
		"wal":  s.dbPath + "-wal",
		"shm":  s.dbPath + "-shm",
	} {
		if info, err := os.Stat(path); err == nil {
			sizes[label] = info.Size()
		}
	}
	return sizes
}

// recordQuery records store query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseStorePermissions checks directory and file permissions
func diagnoseStorePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat store directory: %w", err)
	}
	logging.Debug("Store directory: %s (mode: %v)", dir, dirInfo.Mode())

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Store file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Store file is read-only! Mode: %v - this will cause write failures", info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", path)
			}
		}
	}

	return nil
}
