// Package coordinator hands out strictly increasing work indexes to concurrent
// workers and reports which completions are safe to checkpoint.
//
// Every call to Process takes the next index from an atomic counter, records
// it in an ordered in-flight set, runs the caller's task and, on success,
// checks whether the index is the lowest member of the set before removing
// it. Only a completion that was the lowest outstanding index is reported as
// committable, so the sequence of committable indexes is strictly increasing
// and every index below a committed one has already completed.
//
// A task that fails leaves its index in the set. Such an index becomes a
// floor for the watermark: no later completion will be committable again
// for the lifetime of the Coordinator.
//
// Usage:
//
//	coord := coordinator.New[bool](start)
//	done, err := coord.Process(ctx, func(ctx context.Context, index uint64) (bool, error) {
//		return mirrorThing(ctx, index)
//	})
//	if err == nil && done.Committable {
//		saveCheckpoint(done.Index)
//	}
package coordinator
