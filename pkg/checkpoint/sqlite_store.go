package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps every saved index as a row, tagged with the run that
// saved it. The latest row is the checkpoint.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	runID string

	mu sync.Mutex
	wm watermark
}

// OpenSQLite opens or creates the checkpoint database at path
func OpenSQLite(path, runID string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection keeps pragmas and writes on the same handle
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path, runID: runID}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string { return s.path }

// Load returns the most recently saved index
func (s *SQLiteStore) Load(ctx context.Context) (uint64, bool, error) {
	var index int64
	err := s.db.QueryRowContext(ctx,
		"SELECT work_index FROM checkpoints ORDER BY id DESC LIMIT 1",
	).Scan(&index)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return uint64(index), true, nil
}

// Save appends a checkpoint row
func (s *SQLiteStore) Save(ctx context.Context, index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wm.ahead(index) {
		return nil
	}

	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO checkpoints (work_index, run_id, saved_at) VALUES (?, ?, ?)",
			int64(index), s.runID, time.Now().UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	s.wm.advance(index)
	return nil
}

// History returns up to limit saved checkpoints, newest first
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT work_index, run_id, saved_at FROM checkpoints ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			index   int64
			runID   string
			savedAt int64
		)
		if err := rows.Scan(&index, &runID, &savedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, Entry{
			Index:   uint64(index),
			RunID:   runID,
			SavedAt: time.UnixMilli(savedAt),
		})
	}
	return entries, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
