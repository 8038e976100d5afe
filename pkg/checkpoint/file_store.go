package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"thingmirror/pkg/storage"
)

// FileStore keeps the checkpoint as a decimal number in a single file
type FileStore struct {
	path string

	mu sync.Mutex
	wm watermark
}

// NewFileStore creates a store backed by path. Nothing is touched until
// the first Load or Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the checkpoint file path
func (s *FileStore) Path() string { return s.path }

// Load reads the stored index
func (s *FileStore) Load(ctx context.Context) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	index, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt checkpoint file %s: %w", s.path, err)
	}
	return index, true, nil
}

// Save atomically replaces the stored index
func (s *FileStore) Save(ctx context.Context, index uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wm.ahead(index) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if err := storage.WriteFile(s.path, []byte(strconv.FormatUint(index, 10))); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	s.wm.advance(index)
	return nil
}

// Close is a no-op
func (s *FileStore) Close() error { return nil }
