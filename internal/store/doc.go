// Package store provides SQLite-backed run history.
//
// Every suite run is stored as one row in runs and one row per case in
// verdicts, so results can be compared across runs and flaky cases found.
//
// # Ordering
//
//   - Verdicts of a run are ordered by seq, the case's position in the run.
//   - Runs are ordered by started_at, then id COLLATE BINARY. Run IDs are
//     UUIDv7, so the tie-break is also chronological.
//
// # Connection settings
//
// Open passes WAL journaling, synchronous=NORMAL, a 5s busy timeout and
// foreign keys through the DSN. Deleting a run cascades to its verdicts.
//
// Timestamps are stored as UTC unix milliseconds. Diffs and state paths are
// stored as JSON text.
package store
