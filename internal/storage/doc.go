// Package storage defines a minimal byte-oriented key-value interface and
// an in-memory implementation of it. internal/worker uses it as the blob
// store behind a reference worker's shard and partial-result data, keyed by
// the opaque shard path a catalog.ShardRef carries.
package storage
