package sqlast

import "testing"

// TestParseCreateTable tests the CREATE TABLE grammar, including type
// normalization and the IF NOT EXISTS / IS NOT NULL modifiers.
func TestParseCreateTable(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{
			name:  "basic table",
			query: "CREATE TABLE events (event_id INT, user_id INT, event_type VARCHAR, value DOUBLE, event_time TIMESTAMP)",
		},
		{
			name:  "not null and if not exists",
			query: "CREATE TABLE t (id INT IS NOT NULL) IF NOT EXISTS",
		},
		{
			name:  "aliased type names normalize",
			query: "CREATE TABLE t (a INTEGER, b TEXT, c BOOL, d HUGEINT)",
		},
		{
			name:    "duplicate column name",
			query:   "CREATE TABLE t (a INT, a INT)",
			wantErr: true,
		},
		{
			name:    "unknown type",
			query:   "CREATE TABLE t (a FROBNICATE)",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.query)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stmt.CreateTable == nil {
				t.Fatalf("expected CreateTable statement")
			}
		})
	}

	stmt, err := Parse("CREATE TABLE t (a INTEGER, b TEXT, c BOOL, d HUGEINT)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ColumnType{TypeInt, TypeVarchar, TypeBoolean, TypeBigInt}
	for i, col := range stmt.CreateTable.Columns {
		if col.Type != want[i] {
			t.Errorf("column %d: got type %s, want %s", i, col.Type, want[i])
		}
	}
}

// TestParseDropTable tests the DROP TABLE grammar.
func TestParseDropTable(t *testing.T) {
	stmt, err := Parse("DROP TABLE events IF EXISTS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stmt.DropTable == nil || stmt.DropTable.Table != "events" || !stmt.DropTable.IfExists {
		t.Fatalf("unexpected parse result: %+v", stmt.DropTable)
	}

	stmt, err = Parse("DROP TABLE events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stmt.DropTable.IfExists {
		t.Errorf("expected IfExists=false")
	}
}

// TestParseInsertFrom tests the INSERT INTO ... FROM grammar, including the
// optional ROWS PER SHARD clause.
func TestParseInsertFrom(t *testing.T) {
	stmt, err := Parse("INSERT INTO events FROM /data/events.csv ROWS PER SHARD 1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ins := stmt.InsertFrom
	if ins.Table != "events" || ins.SourcePath != "/data/events.csv" || ins.RowsPerShard != 1000 {
		t.Fatalf("unexpected parse result: %+v", ins)
	}

	stmt, err = Parse("INSERT INTO events FROM /data/events.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stmt.InsertFrom.RowsPerShard != -1 {
		t.Errorf("expected RowsPerShard=-1 (unset), got %d", stmt.InsertFrom.RowsPerShard)
	}
}

// TestParseSelectPassThrough covers scenario S1/S2 from spec §8.
func TestParseSelectPassThrough(t *testing.T) {
	stmt, err := Parse("SELECT event_id, value FROM events WHERE event_type = 'click' AND value > 1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := stmt.Select
	if sel.Table != "events" {
		t.Fatalf("unexpected table: %s", sel.Table)
	}
	if len(sel.Items) != 2 || sel.Items[0].Column != "event_id" || sel.Items[1].Column != "value" {
		t.Fatalf("unexpected items: %+v", sel.Items)
	}
	if sel.HasAggregates() {
		t.Errorf("expected no aggregates")
	}
	if sel.Where == nil || len(sel.Where.Atoms) != 2 {
		t.Fatalf("unexpected where: %+v", sel.Where)
	}
	if sel.Where.Atoms[0].Value.Str != "click" {
		t.Errorf("unexpected literal: %+v", sel.Where.Atoms[0].Value)
	}
	if sel.Where.Atoms[1].Value.Float != 1.0 {
		t.Errorf("unexpected literal: %+v", sel.Where.Atoms[1].Value)
	}
}

// TestParseSelectScalarAggregate covers scenario S3 from spec §8.
func TestParseSelectScalarAggregate(t *testing.T) {
	stmt, err := Parse("SELECT COUNT(*) AS n, SUM(value) AS total_value FROM events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := stmt.Select
	if !sel.HasAggregates() {
		t.Fatalf("expected aggregates")
	}
	if sel.Items[0].Aggregate != AggCount || !sel.Items[0].Star || sel.Items[0].Alias != "n" {
		t.Errorf("unexpected item 0: %+v", sel.Items[0])
	}
	if sel.Items[1].Aggregate != AggSum || sel.Items[1].Column != "value" || sel.Items[1].Alias != "total_value" {
		t.Errorf("unexpected item 1: %+v", sel.Items[1])
	}
}

// TestParseSelectGroupedAggregate covers scenarios S4-S6 from spec §8.
func TestParseSelectGroupedAggregate(t *testing.T) {
	stmt, err := Parse("SELECT event_type, COUNT(*) AS n, SUM(value) AS total, AVG(value) AS avg FROM events WHERE user_id IS NOT NULL GROUP BY event_type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := stmt.Select
	if len(sel.GroupBy) != 1 || sel.GroupBy[0] != "event_type" {
		t.Fatalf("unexpected group by: %+v", sel.GroupBy)
	}
	if sel.Where.Atoms[0].Kind != AtomIsNull || !sel.Where.Atoms[0].IsNot {
		t.Fatalf("unexpected where atom: %+v", sel.Where.Atoms[0])
	}
}

// TestParseSelectShapeValidation verifies the static rule that every
// non-aggregate projection in a statement with aggregates must be grouped.
func TestParseSelectShapeValidation(t *testing.T) {
	_, err := Parse("SELECT event_type, COUNT(*) FROM events")
	if err == nil {
		t.Fatalf("expected error for ungrouped non-aggregate column")
	}

	_, err = Parse("SELECT event_type, COUNT(*) FROM events GROUP BY event_type")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestParseRejectsUnsupportedGrammar checks that JOIN/ORDER BY/LIMIT and
// similar constructs outside the grammar fail with a *ParseError rather
// than being silently accepted.
func TestParseRejectsUnsupportedGrammar(t *testing.T) {
	queries := []string{
		"SELECT * FROM a JOIN b ON a.id = b.id",
		"SELECT * FROM events ORDER BY event_id",
		"SELECT * FROM events LIMIT 10",
		"UPDATE events SET value = 1",
		"DELETE FROM events",
	}
	for _, q := range queries {
		if _, err := Parse(q); err == nil {
			t.Errorf("expected parse error for %q", q)
		} else if _, ok := err.(*ParseError); !ok {
			t.Errorf("expected *ParseError for %q, got %T", q, err)
		}
	}
}
