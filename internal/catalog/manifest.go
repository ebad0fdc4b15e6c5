package catalog

import "github.com/dreamware/minisnowflake/internal/sqlast"

// ColumnSchema is one column of a table's schema: name, normalized type, and
// nullability. Column names are unique within a Schema (spec §3 Table
// invariant).
type ColumnSchema struct {
	Name    string            `json:"name"`
	Type    sqlast.ColumnType `json:"type"`
	NotNull bool              `json:"not_null"`
}

// Schema is the ordered column list of a table. Schemas are immutable after
// table creation (spec §4.2).
type Schema struct {
	Columns []ColumnSchema `json:"columns"`
}

// ColumnNames returns just the names, in schema order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the column with the given name and whether it was found.
func (s Schema) Lookup(name string) (ColumnSchema, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// ShardRef describes one physical shard file: its monotonically assigned
// id, an opaque path, and its row count. Invariant: sum of all ShardRef.Rows
// in a Manifest equals the logical table row count (spec §3).
type ShardRef struct {
	Path    string `json:"path"`
	ID      int    `json:"id"`
	Rows    int    `json:"rows"`
}

// Manifest is the full persisted record for one table: its schema and the
// ordered list of shards that make it up, plus the next shard id to assign.
type Manifest struct {
	Schema      Schema     `json:"schema"`
	Table       string     `json:"table"`
	Shards      []ShardRef `json:"shards"`
	NextShardID int        `json:"next_shard_id"`
}

// RowCount is the sum of all shard row counts — the logical table size.
func (m *Manifest) RowCount() int {
	total := 0
	for _, s := range m.Shards {
		total += s.Rows
	}
	return total
}
