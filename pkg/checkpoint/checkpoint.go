package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"thingmirror/pkg/config"
	"thingmirror/pkg/logger"
)

// DefaultStart is the first index of a fresh mirror
const DefaultStart uint64 = 1

// Store persists the last committed work index. Implementations must be
// safe for concurrent use and must never move the stored index backwards
// within one process.
type Store interface {
	// Load returns the stored index and whether one exists.
	Load(ctx context.Context) (index uint64, found bool, err error)
	// Save records a committed index.
	Save(ctx context.Context, index uint64) error
	// Close releases the backend.
	Close() error
}

// Entry is one saved checkpoint, as reported by backends that keep history
type Entry struct {
	Index   uint64
	RunID   string
	SavedAt time.Time
}

// HistoryStore is implemented by backends that keep every saved index
type HistoryStore interface {
	Store
	History(ctx context.Context, limit int) ([]Entry, error)
}

// Origin says where a run's start index came from
type Origin string

const (
	OriginFlag       Origin = "flag"
	OriginCheckpoint Origin = "checkpoint"
	OriginDefault    Origin = "default"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	fileName   = "index"
	sqliteName = "checkpoint.db"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name
var ErrUnknownBackend = errors.New("unknown checkpoint backend")

// Location returns the file backing the store cfg selects
func Location(cfg *config.Config) (string, error) {
	dir := cfg.Mirror.Output
	switch strings.ToLower(cfg.Checkpoint.Backend) {
	case "", BackendFile:
		return filepath.Join(dir, fileName), nil
	case BackendSQLite:
		return filepath.Join(dir, sqliteName), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Checkpoint.Backend)
	}
}

// Open creates the store selected by cfg.Checkpoint.Backend inside the
// output directory. runID tags rows in backends that keep history.
func Open(cfg *config.Config, runID string) (Store, error) {
	path, err := Location(cfg)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.Checkpoint.Backend, BackendSQLite) {
		return OpenSQLite(path, runID)
	}
	return NewFileStore(path), nil
}

// ResolveStart picks the first index of a run: an explicit override wins,
// then the stored checkpoint, then DefaultStart. The stored index is used
// as is, so the last committed thing is visited again and skipped.
func ResolveStart(ctx context.Context, store Store, override uint64) (uint64, Origin, error) {
	if override > 0 {
		return override, OriginFlag, nil
	}

	index, found, err := store.Load(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("load checkpoint: %w", err)
	}
	if found {
		return index, OriginCheckpoint, nil
	}
	return DefaultStart, OriginDefault, nil
}

// LoggingSink adapts a Store to the worker pool's commit sink, logging
// every persisted index.
type LoggingSink struct {
	Store  Store
	Logger logger.Logger
}

// Save persists index and logs it
func (s LoggingSink) Save(ctx context.Context, index uint64) error {
	if err := s.Store.Save(ctx, index); err != nil {
		return fmt.Errorf("save checkpoint %d: %w", index, err)
	}
	if s.Logger != nil {
		s.Logger.InfoWithFields("successfully mirrored index", map[string]interface{}{
			"index": index,
		})
	}
	return nil
}

// watermark drops saves that would move the stored index backwards.
// Commits are signalled in increasing order, but two workers may reach
// the store in either order.
type watermark struct {
	last uint64
	set  bool
}

// ahead reports whether index would move the stored index forward
func (w *watermark) ahead(index uint64) bool {
	return !w.set || index > w.last
}

// advance records index once it is durably stored
func (w *watermark) advance(index uint64) {
	w.last, w.set = index, true
}
