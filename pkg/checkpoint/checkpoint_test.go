package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thingmirror/pkg/config"
	"thingmirror/pkg/logger"
)

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "index"))

	_, found, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content", "index")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 17))
	require.NoError(t, store.Save(ctx, 42))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42", string(raw))

	index, found, err := NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(42), index)
}

func TestFileStoreReadsHandWrittenIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(path, []byte("1234\n"), 0644))

	index, found, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(1234), index)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0644))

	_, _, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStoreNeverRegresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	store := NewFileStore(path)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := uint64(1); i <= 200; i++ {
		wg.Add(1)
		go func(i uint64) {
			defer wg.Done()
			assert.NoError(t, store.Save(ctx, i))
		}(i)
	}
	wg.Wait()

	index, _, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), index)

	require.NoError(t, store.Save(ctx, 150))
	index, _, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), index)
}

func TestFileStoreRetriesIndexAfterFailedWrite(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "content")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))
	store := NewFileStore(filepath.Join(blocker, "index"))
	ctx := context.Background()

	require.Error(t, store.Save(ctx, 5))

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, store.Save(ctx, 5))

	index, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(5), index)
}

func TestSQLiteStoreRetriesIndexAfterFailedWrite(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "checkpoint.db"), "run-1")
	require.NoError(t, err)
	defer store.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, store.Save(cancelled, 8))

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, 8))

	index, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(8), index)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	ctx := context.Background()

	store, err := OpenSQLite(path, "run-1")
	require.NoError(t, err)

	_, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, 10))
	require.NoError(t, store.Save(ctx, 12))
	require.NoError(t, store.Save(ctx, 11)) // ignored
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path, "run-2")
	require.NoError(t, err)
	defer reopened.Close()

	index, found, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(12), index)

	require.NoError(t, reopened.Save(ctx, 30))

	history, err := reopened.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(30), history[0].Index)
	assert.Equal(t, "run-2", history[0].RunID)
	assert.Equal(t, uint64(12), history[1].Index)
	assert.Equal(t, "run-1", history[1].RunID)
	assert.False(t, history[0].SavedAt.IsZero())

	limited, err := reopened.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	store, err := OpenSQLite(path, "run-1")
	require.NoError(t, err)
	_, err = store.db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = OpenSQLite(path, "run-2")
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mirror.Output = t.TempDir()

	store, err := Open(cfg, "run")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	assert.Equal(t, filepath.Join(cfg.Mirror.Output, "index"), store.(*FileStore).Path())

	cfg.Checkpoint.Backend = "SQLite"
	store, err = Open(cfg, "run")
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(HistoryStore)
	assert.True(t, ok)

	path, err := Location(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Mirror.Output, "checkpoint.db"), path)
	assert.FileExists(t, path)

	cfg.Checkpoint.Backend = "redis"
	_, err = Open(cfg, "run")
	assert.ErrorIs(t, err, ErrUnknownBackend)
	_, err = Location(cfg)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestResolveStart(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "index"))

	start, origin, err := ResolveStart(ctx, store, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultStart, start)
	assert.Equal(t, OriginDefault, origin)

	require.NoError(t, store.Save(ctx, 500))

	start, origin, err = ResolveStart(ctx, store, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), start, "resume from the stored index, not the one after it")
	assert.Equal(t, OriginCheckpoint, origin)

	start, origin, err = ResolveStart(ctx, store, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), start)
	assert.Equal(t, OriginFlag, origin)
}

func TestResolveStartCorruptCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	_, _, err := ResolveStart(context.Background(), NewFileStore(path), 0)
	assert.Error(t, err)

	// an override does not need the checkpoint
	start, _, err := ResolveStart(context.Background(), NewFileStore(path), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), start)
}

func TestLoggingSink(t *testing.T) {
	log := logger.NewTestLogger()
	store := NewFileStore(filepath.Join(t.TempDir(), "index"))
	sink := LoggingSink{Store: store, Logger: log}

	require.NoError(t, sink.Save(context.Background(), 77))

	msgs := log.GetMessagesByLevel("INFO")
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(77), msgs[0].Fields["index"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Save(ctx, 78), context.Canceled)
}
