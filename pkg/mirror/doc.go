// Package mirror implements the unit of work: copying one thing from the
// API to disk.
//
// For each id the Mirrorer fetches the thing, skips it when the API answers
// 404 or 403 or when it is already on disk, then fetches its image and file
// listings. Everything is written into a staging directory (info.json, the
// display/large rendition of every image, every file) which is renamed into
// place at the end. A failed attempt therefore leaves nothing behind that a
// retry could mistake for a finished thing.
//
// With Options.End set, ids past End report Outcome.Done so the worker
// that reaches them stops the pool.
package mirror
