package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	// bucketSize groups thing directories so no single directory grows huge
	bucketSize = 1000

	stagingSuffix = ".partial"
	tempSuffix    = ".tmp"
)

// ErrAlreadyMirrored is returned by Commit when the final directory
// appeared while the thing was being staged.
var ErrAlreadyMirrored = errors.New("thing already mirrored")

// Manager owns the on-disk layout of the mirror:
//
//	<root>/<id/1000*1000>/<id>/{info.json,images/,files/}
type Manager struct {
	root      string
	committed atomic.Int64
}

// NewManager creates a new storage manager rooted at root
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the output directory path
func (m *Manager) Root() string {
	return m.root
}

// ThingPath returns the final directory of a thing
func (m *Manager) ThingPath(id uint64) string {
	bucket := id / bucketSize * bucketSize
	return filepath.Join(m.root, strconv.FormatUint(bucket, 10), strconv.FormatUint(id, 10))
}

// Exists reports whether a thing has been mirrored. Staging directories
// are not considered.
func (m *Manager) Exists(id uint64) (bool, error) {
	_, err := os.Stat(m.ThingPath(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat thing directory: %w", err)
	}
}

// Stage prepares an empty staging directory for a thing, discarding any
// leftover from an earlier attempt.
func (m *Manager) Stage(id uint64) (*Staging, error) {
	final := m.ThingPath(id)
	dir := final + stagingSuffix

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear staging directory: %w", err)
	}
	s := &Staging{manager: m, dir: dir, final: final}
	for _, sub := range []string{s.ImagesDir(), s.FilesDir()} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
	}
	return s, nil
}

// CommittedCount returns how many things this manager committed
func (m *Manager) CommittedCount() int64 {
	return m.committed.Load()
}

// Staging is a thing directory under construction
type Staging struct {
	manager *Manager
	dir     string
	final   string
}

// Dir returns the staging directory
func (s *Staging) Dir() string { return s.dir }

// ImagesDir returns the staged images directory
func (s *Staging) ImagesDir() string { return filepath.Join(s.dir, "images") }

// FilesDir returns the staged files directory
func (s *Staging) FilesDir() string { return filepath.Join(s.dir, "files") }

// Commit publishes the staged directory under its final name.
func (s *Staging) Commit() error {
	if _, err := os.Stat(s.final); err == nil {
		_ = s.Discard()
		return ErrAlreadyMirrored
	}
	if err := os.Rename(s.dir, s.final); err != nil {
		return fmt.Errorf("failed to publish thing directory: %w", err)
	}
	s.manager.committed.Add(1)
	return nil
}

// Discard removes the staging directory
func (s *Staging) Discard() error {
	return os.RemoveAll(s.dir)
}

// SaveStream writes a file atomically: fill receives a temporary file
// which is renamed into place only if fill succeeds.
func SaveStream(path string, fill func(w io.Writer) error) error {
	tempFile := path + tempSuffix
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	err = fill(out)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return err
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// WriteFile writes data atomically
func WriteFile(path string, data []byte) error {
	return SaveStream(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CleanStaging removes staging directories left behind by an interrupted
// run. It must only be called while holding the output lock and before
// any worker starts.
func (m *Manager) CleanStaging() (int, error) {
	buckets, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}

	removed := 0
	for _, bucket := range buckets {
		if !bucket.IsDir() {
			continue
		}
		if _, err := strconv.ParseUint(bucket.Name(), 10, 64); err != nil {
			continue
		}
		bucketPath := filepath.Join(m.root, bucket.Name())
		entries, err := os.ReadDir(bucketPath)
		if err != nil {
			return removed, fmt.Errorf("failed to read bucket %s: %w", bucket.Name(), err)
		}
		for _, entry := range entries {
			if entry.IsDir() && strings.HasSuffix(entry.Name(), stagingSuffix) {
				if err := os.RemoveAll(filepath.Join(bucketPath, entry.Name())); err != nil {
					return removed, fmt.Errorf("failed to remove staging directory %s: %w", entry.Name(), err)
				}
				removed++
			}
		}
	}
	return removed, nil
}
