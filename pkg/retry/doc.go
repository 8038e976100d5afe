// Package retry wraps a single unit of work with a bounded number of attempts.
//
// The default policy is the one the mirror uses: three attempts, retried
// immediately with no delay. Attempts are numbered from 1 and the number is
// passed to the operation so it can tag its logs.
//
// Basic usage:
//
//	mirrored, err := retry.DoWithResult(func(attempt int) (bool, error) {
//		return mirrorThing(ctx, id, attempt)
//	}, retry.DefaultConfig().WithContext(ctx))
//
// When every attempt fails the returned error wraps the final attempt's
// error, so errors.Is and errors.As see through it. Context cancellation is
// never retried.
//
// Delays between attempts come from a BackoffStrategy: NoBackoff (default),
// ConstantBackoff or ExponentialBackoff with jitter.
package retry
