// Package checkpoint persists the mirror's progress so a later run can
// resume where the previous one left off.
//
// The stored value is the highest work index whose own work and all of
// whose predecessors have completed. Two backends are available:
//
//   - file: <output>/index holding the index in decimal. Writes go to a
//     temporary file which is synced and renamed over the old one.
//   - sqlite: <output>/checkpoint.db with one row per save, tagged with
//     the run id, so `thingmirror status --history` can show progress
//     over time.
//
// On start, ResolveStart prefers an explicit --start, then the stored
// index, then 1.
package checkpoint
