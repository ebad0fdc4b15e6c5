package planner

import (
	"testing"

	"github.com/dreamware/minisnowflake/internal/catalog"
	"github.com/dreamware/minisnowflake/internal/sqlast"
)

func eventsSchema() catalog.Schema {
	return catalog.Schema{Columns: []catalog.ColumnSchema{
		{Name: "event_id", Type: sqlast.TypeInt},
		{Name: "user_id", Type: sqlast.TypeInt},
		{Name: "event_type", Type: sqlast.TypeVarchar},
		{Name: "value", Type: sqlast.TypeDouble},
		{Name: "event_time", Type: sqlast.TypeTimestamp},
	}}
}

func mustParse(t *testing.T, query string) *sqlast.Select {
	t.Helper()
	stmt, err := sqlast.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	if stmt.Select == nil {
		t.Fatalf("expected a SELECT statement")
	}
	return stmt.Select
}

// TestPlanPassThroughStar covers scenario S1.
func TestPlanPassThroughStar(t *testing.T) {
	sel := mustParse(t, "SELECT * FROM events")
	pq, err := Plan(sel, eventsSchema())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if pq.Mode != PassThrough {
		t.Fatalf("expected PassThrough, got %s", pq.Mode)
	}
	if pq.ReduceSQL != "" {
		t.Errorf("expected empty ReduceSQL for pass-through, got %q", pq.ReduceSQL)
	}
	if len(pq.OutputSchema) != 5 {
		t.Fatalf("expected 5 output columns, got %d: %+v", len(pq.OutputSchema), pq.OutputSchema)
	}
	if pq.MapSQL != "SELECT * FROM events" {
		t.Errorf("unexpected MapSQL: %q", pq.MapSQL)
	}
}

// TestPlanPassThroughWithWhere covers scenario S2.
func TestPlanPassThroughWithWhere(t *testing.T) {
	sel := mustParse(t, "SELECT event_id, value FROM events WHERE event_type = 'click' AND value > 1.0")
	pq, err := Plan(sel, eventsSchema())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := "SELECT event_id, value FROM events WHERE event_type = 'click' AND value > 1"
	if pq.MapSQL != want {
		t.Errorf("unexpected MapSQL:\n got:  %q\n want: %q", pq.MapSQL, want)
	}
	if len(pq.OutputSchema) != 2 || pq.OutputSchema[0].Name != "event_id" || pq.OutputSchema[1].Name != "value" {
		t.Fatalf("unexpected output schema: %+v", pq.OutputSchema)
	}
}

// TestPlanScalarAggregate covers scenario S3.
func TestPlanScalarAggregate(t *testing.T) {
	sel := mustParse(t, "SELECT COUNT(*) AS n, SUM(value) AS total_value FROM events")
	pq, err := Plan(sel, eventsSchema())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if pq.Mode != Scalar {
		t.Fatalf("expected Scalar, got %s", pq.Mode)
	}
	wantMap := "SELECT COUNT(*) AS _c_0, SUM(value) AS _s_1 FROM events"
	if pq.MapSQL != wantMap {
		t.Errorf("unexpected MapSQL:\n got:  %q\n want: %q", pq.MapSQL, wantMap)
	}
	wantReduce := "SELECT SUM(_c_0) AS _c_0, SUM(_s_1) AS _s_1 FROM events"
	if pq.ReduceSQL != wantReduce {
		t.Errorf("unexpected ReduceSQL:\n got:  %q\n want: %q", pq.ReduceSQL, wantReduce)
	}
	if len(pq.Projections) != 2 {
		t.Fatalf("expected 2 projections, got %d", len(pq.Projections))
	}
	if pq.Projections[0].Output != "n" || pq.Projections[0].Aggregate != sqlast.AggCount {
		t.Errorf("unexpected projection 0: %+v", pq.Projections[0])
	}
	if pq.Projections[1].Output != "total_value" || pq.Projections[1].Aggregate != sqlast.AggSum {
		t.Errorf("unexpected projection 1: %+v", pq.Projections[1])
	}
}

// TestPlanGroupedAggregate covers scenarios S4/S5.
func TestPlanGroupedAggregate(t *testing.T) {
	sel := mustParse(t, "SELECT event_type, COUNT(*) AS n_events FROM events GROUP BY event_type")
	pq, err := Plan(sel, eventsSchema())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if pq.Mode != Grouped {
		t.Fatalf("expected Grouped, got %s", pq.Mode)
	}
	wantMap := "SELECT event_type, COUNT(*) AS _c_1 FROM events GROUP BY event_type"
	if pq.MapSQL != wantMap {
		t.Errorf("unexpected MapSQL:\n got:  %q\n want: %q", pq.MapSQL, wantMap)
	}
	wantReduce := "SELECT event_type, SUM(_c_1) AS _c_1 FROM events GROUP BY event_type"
	if pq.ReduceSQL != wantReduce {
		t.Errorf("unexpected ReduceSQL:\n got:  %q\n want: %q", pq.ReduceSQL, wantReduce)
	}
	if len(pq.Projections) != 2 || pq.Projections[0].IsAggregate || pq.Projections[0].SourceColumn != "event_type" {
		t.Fatalf("unexpected projections: %+v", pq.Projections)
	}
}

// TestPlanGroupedAverageDecomposition covers scenario S6: AVG must decompose
// into SUM/COUNT in both map and reduce, leaving the final division to the
// engine's local projection.
func TestPlanGroupedAverageDecomposition(t *testing.T) {
	sel := mustParse(t, "SELECT event_type, COUNT(*) AS n, SUM(value) AS total, AVG(value) AS avg FROM events WHERE user_id IS NOT NULL GROUP BY event_type")
	pq, err := Plan(sel, eventsSchema())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	wantMap := "SELECT event_type, COUNT(*) AS _c_1, SUM(value) AS _s_2, SUM(value) AS _sum_3, COUNT(value) AS _cnt_3 FROM events WHERE user_id IS NOT NULL GROUP BY event_type"
	if pq.MapSQL != wantMap {
		t.Errorf("unexpected MapSQL:\n got:  %q\n want: %q", pq.MapSQL, wantMap)
	}
	wantReduce := "SELECT event_type, SUM(_c_1) AS _c_1, SUM(_s_2) AS _s_2, SUM(_sum_3) AS _sum_3, SUM(_cnt_3) AS _cnt_3 FROM events GROUP BY event_type"
	if pq.ReduceSQL != wantReduce {
		t.Errorf("unexpected ReduceSQL:\n got:  %q\n want: %q", pq.ReduceSQL, wantReduce)
	}

	avgProj := pq.Projections[3]
	if avgProj.Output != "avg" || avgProj.Aggregate != sqlast.AggAvg {
		t.Fatalf("unexpected avg projection: %+v", avgProj)
	}
	if len(avgProj.Intermediates) != 2 || avgProj.Intermediates[0] != "_sum_3" || avgProj.Intermediates[1] != "_cnt_3" {
		t.Fatalf("expected avg projection to carry (sum, count) intermediates, got %+v", avgProj.Intermediates)
	}
	for _, col := range pq.OutputSchema {
		if col.Name == "avg" && col.Type != sqlast.TypeDouble {
			t.Errorf("expected avg output column to be DOUBLE, got %s", col.Type)
		}
	}
}

func TestPlanUnknownColumnFails(t *testing.T) {
	sel := mustParse(t, "SELECT nonexistent FROM events")
	_, err := Plan(sel, eventsSchema())
	if _, ok := err.(*ColumnNotFoundError); !ok {
		t.Fatalf("expected *ColumnNotFoundError, got %v (%T)", err, err)
	}
}

func TestPlanGroupByWithoutAggregateIsUnsupported(t *testing.T) {
	sel := mustParse(t, "SELECT event_type FROM events GROUP BY event_type")
	_, err := Plan(sel, eventsSchema())
	if _, ok := err.(*UnsupportedShapeError); !ok {
		t.Fatalf("expected *UnsupportedShapeError, got %v (%T)", err, err)
	}
}
