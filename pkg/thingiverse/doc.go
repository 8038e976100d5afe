// Package thingiverse is a small client for the Thingiverse REST API.
//
// It covers the calls needed to mirror a thing: the thing itself, its image
// and file listings, and streaming downloads of the referenced assets.
// Every API request carries the bearer token and is paced by a
// ratelimit.Limiter.
//
// Non-2xx responses are returned as *errors.Error values typed by status,
// so callers can use errors.IsSkippable to treat 404 and 403 as "nothing
// here" rather than a failure. A cancelled context is returned unchanged.
package thingiverse
