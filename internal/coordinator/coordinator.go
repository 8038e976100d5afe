package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

// btreeDegree is the branching factor of the in-flight set. The set only ever
// holds roughly one entry per worker plus any stuck indexes, so a small
// degree keeps nodes compact.
const btreeDegree = 8

// Task runs one unit of work for the given index.
type Task[R any] func(ctx context.Context, index uint64) (R, error)

// Completion is the outcome of a single Process call.
type Completion[R any] struct {
	// Value is whatever the task returned.
	Value R
	// Index is the work index allocated to the task. It is set even when
	// Process returns an error.
	Index uint64
	// Committable reports that Index was the lowest in-flight index when it
	// completed, i.e. every index below it has already finished.
	Committable bool
}

// Coordinator allocates work indexes and tracks the in-flight set.
type Coordinator[R any] struct {
	next atomic.Uint64

	mu       sync.Mutex
	inFlight *btree.BTreeG[uint64]
}

// New creates a Coordinator whose first allocated index is start.
func New[R any](start uint64) *Coordinator[R] {
	c := &Coordinator[R]{
		inFlight: btree.NewOrderedG[uint64](btreeDegree),
	}
	c.next.Store(start)
	return c
}

// Process allocates the next index, runs task with it and reports whether the
// completion advances the watermark.
//
// Errors from task are returned as is and the index stays in the in-flight
// set permanently. If ctx is already done no index is allocated.
func (c *Coordinator[R]) Process(ctx context.Context, task Task[R]) (Completion[R], error) {
	var done Completion[R]
	if err := ctx.Err(); err != nil {
		return done, err
	}

	// Add returns the incremented value; the allocated index is the one before it.
	index := c.next.Add(1) - 1
	done.Index = index

	c.mu.Lock()
	c.inFlight.ReplaceOrInsert(index)
	c.mu.Unlock()

	value, err := task(ctx, index)
	if err != nil {
		return done, err
	}
	done.Value = value

	// The minimum check and the removal must happen under one acquisition,
	// otherwise two completions could both see themselves as the minimum.
	c.mu.Lock()
	if lowest, ok := c.inFlight.Min(); ok && lowest == index {
		done.Committable = true
	}
	c.inFlight.Delete(index)
	c.mu.Unlock()

	return done, nil
}

// Next returns the index the next Process call will allocate.
func (c *Coordinator[R]) Next() uint64 {
	return c.next.Load()
}

// InFlight returns the indexes that have been allocated but not successfully
// completed, in ascending order.
func (c *Coordinator[R]) InFlight() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]uint64, 0, c.inFlight.Len())
	c.inFlight.Ascend(func(index uint64) bool {
		out = append(out, index)
		return true
	})
	return out
}

// Watermark returns the lowest in-flight index, if any.
func (c *Coordinator[R]) Watermark() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight.Min()
}
