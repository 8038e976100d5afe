package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	done Completion[string]
	err  error
}

// pending is a task parked inside Process until finish is called.
type pending struct {
	index   uint64
	fail    error
	release chan struct{}
	result  chan outcome
}

func startPending(t *testing.T, c *Coordinator[string], fail error) *pending {
	t.Helper()

	p := &pending{
		fail:    fail,
		release: make(chan struct{}),
		result:  make(chan outcome, 1),
	}
	started := make(chan uint64, 1)

	go func() {
		done, err := c.Process(context.Background(), func(ctx context.Context, index uint64) (string, error) {
			started <- index
			<-p.release
			if p.fail != nil {
				return "", p.fail
			}
			return fmt.Sprintf("thing-%d", index), nil
		})
		p.result <- outcome{done: done, err: err}
	}()

	select {
	case p.index = <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	return p
}

func (p *pending) finish(t *testing.T) outcome {
	t.Helper()
	close(p.release)
	select {
	case o := <-p.result:
		return o
	case <-time.After(5 * time.Second):
		t.Fatalf("index %d never completed", p.index)
		return outcome{}
	}
}

func succeed(ctx context.Context, index uint64) (string, error) {
	return fmt.Sprintf("thing-%d", index), nil
}

func TestProcessInOrderCompletion(t *testing.T) {
	c := New[string](1)

	for want := uint64(1); want <= 3; want++ {
		done, err := c.Process(context.Background(), succeed)
		require.NoError(t, err)
		assert.Equal(t, want, done.Index)
		assert.True(t, done.Committable, "index %d should advance the watermark", want)
		assert.Equal(t, fmt.Sprintf("thing-%d", want), done.Value)
	}

	assert.Empty(t, c.InFlight())
	assert.Equal(t, uint64(4), c.Next())
}

func TestProcessOutOfOrderCompletion(t *testing.T) {
	c := New[string](1)

	first := startPending(t, c, nil)
	second := startPending(t, c, nil)
	third := startPending(t, c, nil)
	require.Equal(t, []uint64{1, 2, 3}, []uint64{first.index, second.index, third.index})
	assert.Equal(t, []uint64{1, 2, 3}, c.InFlight())

	o := second.finish(t)
	require.NoError(t, o.err)
	assert.False(t, o.done.Committable, "2 completes while 1 is outstanding")
	assert.Equal(t, []uint64{1, 3}, c.InFlight())

	o = third.finish(t)
	require.NoError(t, o.err)
	assert.False(t, o.done.Committable, "3 completes while 1 is outstanding")
	assert.Equal(t, []uint64{1}, c.InFlight())

	o = first.finish(t)
	require.NoError(t, o.err)
	assert.True(t, o.done.Committable)
	assert.Equal(t, uint64(1), o.done.Index)
	assert.Empty(t, c.InFlight())
}

func TestProcessStartsFromGivenIndex(t *testing.T) {
	c := New[string](4200)

	done, err := c.Process(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, uint64(4200), done.Index)
	assert.True(t, done.Committable)
}

func TestProcessFailureLeavesIndexInFlight(t *testing.T) {
	c := New[string](1)
	boom := errors.New("boom")

	done, err := c.Process(context.Background(), func(ctx context.Context, index uint64) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), done.Index)
	assert.False(t, done.Committable)

	// Index 1 is now a permanent floor.
	for i := 0; i < 5; i++ {
		done, err := c.Process(context.Background(), succeed)
		require.NoError(t, err)
		assert.False(t, done.Committable, "index %d must not pass the stuck index", done.Index)
	}

	assert.Equal(t, []uint64{1}, c.InFlight())
	lowest, ok := c.Watermark()
	require.True(t, ok)
	assert.Equal(t, uint64(1), lowest)
}

func TestProcessFailureAboveWatermark(t *testing.T) {
	c := New[string](1)

	low := startPending(t, c, nil)
	broken := startPending(t, c, errors.New("unreachable host"))

	o := broken.finish(t)
	require.Error(t, o.err)

	// The lower index still commits because it is the minimum.
	o = low.finish(t)
	require.NoError(t, o.err)
	assert.True(t, o.done.Committable)

	done, err := c.Process(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), done.Index)
	assert.False(t, done.Committable)
	assert.Equal(t, []uint64{2}, c.InFlight())
}

func TestProcessCancelledContextAllocatesNothing(t *testing.T) {
	c := New[string](10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := c.Process(ctx, func(ctx context.Context, index uint64) (string, error) {
		called = true
		return "", nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, uint64(10), c.Next())
	assert.Empty(t, c.InFlight())
}

// TestWatermarkIsStrictlyIncreasing drives random completion orders one at a
// time and checks every commit against the completed prefix.
func TestWatermarkIsStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		c := New[string](1)
		n := 2 + rng.Intn(7)

		tasks := make([]*pending, n)
		for i := range tasks {
			tasks[i] = startPending(t, c, nil)
		}

		completed := make(map[uint64]bool)
		var commits []uint64
		for _, i := range rng.Perm(n) {
			o := tasks[i].finish(t)
			require.NoError(t, o.err)
			completed[o.done.Index] = true
			if !o.done.Committable {
				continue
			}
			for below := uint64(1); below < o.done.Index; below++ {
				assert.True(t, completed[below], "trial %d: committed %d before %d finished", trial, o.done.Index, below)
			}
			commits = append(commits, o.done.Index)
		}

		for i := 1; i < len(commits); i++ {
			assert.Greater(t, commits[i], commits[i-1], "trial %d: commits %v", trial, commits)
		}
		assert.Empty(t, c.InFlight())
	}
}

func TestProcessAllocatesUniqueIndexes(t *testing.T) {
	const (
		workers = 32
		perWork = 200
	)
	c := New[string](1)

	var (
		mu   sync.Mutex
		seen = make(map[uint64]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				done, err := c.Process(context.Background(), func(ctx context.Context, index uint64) (string, error) {
					if index%7 == 0 {
						time.Sleep(time.Microsecond)
					}
					return "", nil
				})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				mu.Lock()
				seen[done.Index]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWork)
	for index, count := range seen {
		assert.Equal(t, 1, count, "index %d allocated %d times", index, count)
		assert.GreaterOrEqual(t, index, uint64(1))
		assert.LessOrEqual(t, index, uint64(workers*perWork))
	}
	assert.Empty(t, c.InFlight())
}

func TestConcurrentCommitsNeverRepeat(t *testing.T) {
	c := New[string](1)

	var (
		mu      sync.Mutex
		commits = make(map[uint64]bool)
		wg      sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 100; i++ {
				delay := time.Duration(rng.Intn(50)) * time.Microsecond
				done, err := c.Process(context.Background(), func(ctx context.Context, index uint64) (string, error) {
					time.Sleep(delay)
					return "", nil
				})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if done.Committable {
					mu.Lock()
					if commits[done.Index] {
						t.Errorf("index %d committed twice", done.Index)
					}
					commits[done.Index] = true
					mu.Unlock()
				}
			}
		}(int64(w))
	}
	wg.Wait()

	assert.NotEmpty(t, commits)
	assert.Empty(t, c.InFlight())
}
