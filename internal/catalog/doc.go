// Package catalog implements the persisted mapping from (database path,
// table name) to a table's schema and ordered shard list (spec §3, §4.2).
//
// # Model
//
// A Catalog is nothing more than a directory: any directory containing
// manifest files is a valid catalog (spec "Catalog" lifecycle is implicit).
// Each table has exactly one Manifest file, named after the table, holding
// its schema and ShardRef list as JSON.
//
// # Atomicity
//
// Manifest writes follow the teacher's write-temp-then-rename discipline
// (see internal/storage in the retrieval pack's write path, generalized here
// to file-backed persistence): a mutation serializes the whole manifest to a
// temp file in the same directory, fsyncs it, and renames it over the
// existing manifest. Because rename is atomic on the same filesystem, a
// concurrent reader never observes a partially written manifest — it sees
// either the pre- or post-mutation content, never a torn mix (spec §8
// invariant 6).
//
// # Locking
//
// Each table name maps to one *sync.RWMutex, held for the duration of a
// mutation (exclusive) or a read (shared), matching spec §4.2's "writers
// hold an exclusive lock over a manifest for the duration of a mutation".
package catalog
