package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThingPath(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		id   uint64
		want string
	}{
		{1, filepath.Join("0", "1")},
		{999, filepath.Join("0", "999")},
		{1000, filepath.Join("1000", "1000")},
		{4242, filepath.Join("4000", "4242")},
	}
	for _, tt := range tests {
		assert.Equal(t, filepath.Join(manager.Root(), tt.want), manager.ThingPath(tt.id))
	}
}

func TestStageAndCommit(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	exists, err := manager.Exists(4242)
	require.NoError(t, err)
	assert.False(t, exists)

	staging, err := manager.Stage(4242)
	require.NoError(t, err)
	assert.DirExists(t, staging.ImagesDir())
	assert.DirExists(t, staging.FilesDir())
	require.NoError(t, WriteFile(filepath.Join(staging.Dir(), "info.json"), []byte("{}")))

	// staged work is invisible to the existence check
	exists, err = manager.Exists(4242)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, staging.Commit())
	exists, err = manager.Exists(4242)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.FileExists(t, filepath.Join(manager.ThingPath(4242), "info.json"))
	assert.NoDirExists(t, staging.Dir())
	assert.Equal(t, int64(1), manager.CommittedCount())
}

func TestStageDiscardsLeftovers(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	first, err := manager.Stage(7)
	require.NoError(t, err)
	require.NoError(t, WriteFile(filepath.Join(first.FilesDir(), "half.stl"), []byte("sol")))

	second, err := manager.Stage(7)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(second.FilesDir(), "half.stl"))
}

func TestCommitWhenAlreadyMirrored(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	staging, err := manager.Stage(12)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(manager.ThingPath(12), 0755))

	assert.ErrorIs(t, staging.Commit(), ErrAlreadyMirrored)
	assert.NoDirExists(t, staging.Dir())
	assert.Zero(t, manager.CommittedCount())
}

func TestSaveStreamRemovesTempOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.stl")
	boom := errors.New("connection dropped")

	err := SaveStream(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+tempSuffix)

	require.NoError(t, SaveStream(path, func(w io.Writer) error {
		_, err := w.Write([]byte("solid"))
		return err
	}))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "solid", string(content))
}

func TestCleanStaging(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = manager.Stage(5)
	require.NoError(t, err)
	_, err = manager.Stage(2005)
	require.NoError(t, err)
	done, err := manager.Stage(6)
	require.NoError(t, err)
	require.NoError(t, done.Commit())
	require.NoError(t, os.MkdirAll(filepath.Join(manager.Root(), "notes.partial"), 0755))

	removed, err := manager.CleanStaging()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.DirExists(t, manager.ThingPath(6))
	assert.DirExists(t, filepath.Join(manager.Root(), "notes.partial"))
}

func TestAcquireLock(t *testing.T) {
	root := t.TempDir()

	lock, err := AcquireLock(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, LockFileName), lock.Path())

	_, err = AcquireLock(root)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())

	again, err := AcquireLock(root)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}
