package catalog

import (
	"path/filepath"
	"testing"

	"github.com/dreamware/minisnowflake/internal/sqlast"
)

func testSchema() Schema {
	return Schema{Columns: []ColumnSchema{
		{Name: "event_id", Type: sqlast.TypeInt},
		{Name: "value", Type: sqlast.TypeDouble},
	}}
}

func TestCreateTableAndOpenManifest(t *testing.T) {
	cat, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := cat.CreateTable("events", testSchema(), false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	m, err := cat.OpenManifest("events")
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	if m.Table != "events" || len(m.Shards) != 0 || m.NextShardID != 0 {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if len(m.Schema.Columns) != 2 {
		t.Fatalf("unexpected schema: %+v", m.Schema)
	}
}

func TestCreateTableAlreadyExists(t *testing.T) {
	cat, _ := Open(t.TempDir())
	if err := cat.CreateTable("events", testSchema(), false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	err := cat.CreateTable("events", testSchema(), false)
	if _, ok := err.(*AlreadyExistsError); !ok {
		t.Fatalf("expected *AlreadyExistsError, got %v (%T)", err, err)
	}

	if err := cat.CreateTable("events", testSchema(), true); err != nil {
		t.Fatalf("CreateTable with ifNotExists should succeed as no-op: %v", err)
	}
}

func TestOpenManifestNotFound(t *testing.T) {
	cat, _ := Open(t.TempDir())
	_, err := cat.OpenManifest("missing")
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %v (%T)", err, err)
	}
}

func TestDropTable(t *testing.T) {
	cat, _ := Open(t.TempDir())
	cat.CreateTable("events", testSchema(), false)

	if err := cat.DropTable("events", false); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, err := cat.OpenManifest("events"); err == nil {
		t.Fatalf("expected manifest to be gone after DropTable")
	}

	err := cat.DropTable("events", false)
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError dropping missing table, got %v", err)
	}
	if err := cat.DropTable("events", true); err != nil {
		t.Fatalf("DropTable with ifExists should succeed as no-op: %v", err)
	}
}

func TestAppendShards(t *testing.T) {
	cat, _ := Open(t.TempDir())
	cat.CreateTable("events", testSchema(), false)

	first, err := cat.AppendShards("events", []ShardRef{
		{Path: "shard-0.parquet", Rows: 100},
		{Path: "shard-1.parquet", Rows: 50},
	})
	if err != nil {
		t.Fatalf("AppendShards: %v", err)
	}
	if first[0].ID != 0 || first[1].ID != 1 {
		t.Fatalf("expected sequential shard ids starting at 0, got %+v", first)
	}

	second, err := cat.AppendShards("events", []ShardRef{{Path: "shard-2.parquet", Rows: 25}})
	if err != nil {
		t.Fatalf("AppendShards: %v", err)
	}
	if second[0].ID != 2 {
		t.Fatalf("expected third shard id to continue from 2, got %d", second[0].ID)
	}

	m, err := cat.OpenManifest("events")
	if err != nil {
		t.Fatalf("OpenManifest: %v", err)
	}
	if len(m.Shards) != 3 || m.RowCount() != 175 || m.NextShardID != 3 {
		t.Fatalf("unexpected manifest after appends: %+v", m)
	}
}

func TestAppendShardsNotFound(t *testing.T) {
	cat, _ := Open(t.TempDir())
	_, err := cat.AppendShards("missing", []ShardRef{{Path: "x", Rows: 1}})
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %v (%T)", err, err)
	}
}

// TestWriteManifestAtomicLeavesNoTempFiles verifies the temp-then-rename
// discipline doesn't leak temp files behind on success.
func TestWriteManifestAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	cat, _ := Open(dir)
	cat.CreateTable("events", testSchema(), false)
	cat.AppendShards("events", []ShardRef{{Path: "shard-0.parquet", Rows: 10}})

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", matches)
	}
}

func TestManifestsAreIndependentPerTable(t *testing.T) {
	cat, _ := Open(t.TempDir())
	cat.CreateTable("events", testSchema(), false)
	cat.CreateTable("users", Schema{Columns: []ColumnSchema{{Name: "id", Type: sqlast.TypeInt}}}, false)

	cat.AppendShards("events", []ShardRef{{Path: "e0", Rows: 5}})

	usersManifest, err := cat.OpenManifest("users")
	if err != nil {
		t.Fatalf("OpenManifest users: %v", err)
	}
	if len(usersManifest.Shards) != 0 {
		t.Fatalf("expected users manifest untouched by events append, got %+v", usersManifest)
	}
}
