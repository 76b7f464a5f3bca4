// Package storage holds taskherd's persistence primitives:
//
//   - Collection helpers: whole-file JSON array load/save with a
//     write-temp-then-rename pattern (crash safe for a single writer).
//   - Audit Store: an append-only trail of mutations with a dependency-free
//     file driver (jsonl) and an optional SQLite driver (build tag "sqlite").
//
// The collection model assumes exactly one process owns each backing file.
// There is no cross-process locking; concurrent writers would lose updates.
package storage
