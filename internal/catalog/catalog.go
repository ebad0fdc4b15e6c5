package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const manifestSuffix = ".manifest.json"

// Catalog is a file-backed mapping from table name to Manifest, rooted at a
// single database path. A Catalog value is safe for concurrent use; every
// table gets its own mutex so unrelated tables never block each other (spec
// §5: "Catalog and Manifest mutations take a per-table exclusive lock;
// reads take a shared lock").
type Catalog struct {
	path string

	mu    sync.Mutex // protects locks map itself, not manifest contents
	locks map[string]*sync.RWMutex
}

// Open returns a Catalog rooted at path. The directory is created if it
// does not exist; any directory containing manifest files is already a
// valid catalog (spec §3 Catalog lifecycle is implicit), so Open never
// fails just because the catalog is new or empty.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: create database path: %w", err)
	}
	return &Catalog{path: path, locks: make(map[string]*sync.RWMutex)}, nil
}

func (c *Catalog) lockFor(table string) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[table]
	if !ok {
		l = &sync.RWMutex{}
		c.locks[table] = l
	}
	return l
}

func (c *Catalog) manifestPath(table string) string {
	return filepath.Join(c.path, table+manifestSuffix)
}

func (c *Catalog) shardDir(table string) string {
	return filepath.Join(c.path, table+".shards")
}

// CreateTable creates an empty manifest for table with the given schema.
// If the table already has a manifest, CreateTable fails with
// *AlreadyExistsError unless ifNotExists is set, in which case it succeeds
// as a no-op (spec §4.2).
func (c *Catalog) CreateTable(table string, schema Schema, ifNotExists bool) error {
	lock := c.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	if _, err := readManifest(c.manifestPath(table)); err == nil {
		if ifNotExists {
			return nil
		}
		return &AlreadyExistsError{Path: c.path, Table: table}
	}

	m := &Manifest{Table: table, Schema: schema}
	if err := os.MkdirAll(c.shardDir(table), 0o755); err != nil {
		return fmt.Errorf("catalog: create shard directory: %w", err)
	}
	return writeManifestAtomic(c.manifestPath(table), m)
}

// DropTable removes table's manifest and schedules its shard files for
// deletion. If the table has no manifest, DropTable fails with
// *NotFoundError unless ifExists is set.
//
// Shard deletion is best-effort: the manifest disappears atomically (so no
// reader ever observes it afterward) even if the shard directory removal
// encounters an error partway through, matching the teacher's idempotent-
// delete discipline in internal/shard.DeleteRange.
func (c *Catalog) DropTable(table string, ifExists bool) error {
	lock := c.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	path := c.manifestPath(table)
	if _, err := readManifest(path); err != nil {
		if ifExists {
			return nil
		}
		return &NotFoundError{Path: c.path, Table: table}
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("catalog: remove manifest: %w", err)
	}
	_ = os.RemoveAll(c.shardDir(table))
	return nil
}

// OpenManifest returns the current schema and shard list for table, or
// *NotFoundError if no manifest exists.
func (c *Catalog) OpenManifest(table string) (*Manifest, error) {
	lock := c.lockFor(table)
	lock.RLock()
	defer lock.RUnlock()

	m, err := readManifest(c.manifestPath(table))
	if err != nil {
		return nil, &NotFoundError{Path: c.path, Table: table}
	}
	return m, nil
}

// AppendShards atomically appends newShards to table's manifest, assigning
// each a monotonically increasing shard id starting from the manifest's
// next-shard-id counter, and returns the fully assigned refs in the same
// order. AppendShards fails with *NotFoundError if the table has no
// manifest.
func (c *Catalog) AppendShards(table string, newShards []ShardRef) ([]ShardRef, error) {
	lock := c.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	path := c.manifestPath(table)
	m, err := readManifest(path)
	if err != nil {
		return nil, &NotFoundError{Path: c.path, Table: table}
	}

	assigned := make([]ShardRef, len(newShards))
	for i, s := range newShards {
		s.ID = m.NextShardID
		m.NextShardID++
		assigned[i] = s
		m.Shards = append(m.Shards, s)
	}

	if err := writeManifestAtomic(path, m); err != nil {
		return nil, err
	}
	return assigned, nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("catalog: corrupt manifest %s: %w", path, err)
	}
	return &m, nil
}

// writeManifestAtomic serializes m to a temp file beside path, syncs it,
// and renames it over path. Rename is atomic within a single directory on
// every filesystem the core targets, so a concurrent OpenManifest call
// either sees the manifest before this write or fully after it (spec §8
// invariant 6) — it is by construction impossible to observe a prefix.
func writeManifestAtomic(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal manifest: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("catalog: create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("catalog: rename manifest into place: %w", err)
	}
	return nil
}
