// Package storage manages the mirror's output directory.
//
// Things are written under <root>/<bucket>/<id>, where bucket is the id
// rounded down to a multiple of 1000. A thing is first assembled in a
// sibling "<id>.partial" directory and renamed into place once complete,
// so the existence of the final directory means the thing is fully
// mirrored and a retried attempt starts from scratch.
//
// Individual files are written through SaveStream, which writes to a
// temporary name and renames on success. AcquireLock takes an exclusive
// file lock so two runs never share an output directory.
package storage
