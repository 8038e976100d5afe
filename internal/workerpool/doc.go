// Package workerpool runs the mirror's workers.
//
// Every worker loops on the coordinator: allocate an index, run the unit
// of work under the retry policy, and persist the index through the Sink
// when the unit changed something and the coordinator reports the index
// as committable. Commits are written with a context that ignores
// cancellation.
//
// The pool is fail-fast. The first worker to return, whether with an
// error or because its unit reported Outcome.Done, cancels the others;
// Run waits for all of them and returns the first worker's result.
package workerpool
