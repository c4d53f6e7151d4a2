// Package sqlite persists fusion runs in SQLite: one row per run, one per
// processed frame, the latest snapshot of every track seen in the run and
// a per-frame observation trail for each track.
//
// The schema is owned by the embedded migrations under migrations/ and is
// applied with golang-migrate when a store is opened.
package sqlite
