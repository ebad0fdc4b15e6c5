package worker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dreamware/minisnowflake/internal/sqlast"
)

// Execute is a minimal reference columnar engine for exactly the SQL
// surface the planner ever emits as map_sql or reduce_sql: projection,
// AND-only WHERE over comparisons and IS [NOT] NULL, and COUNT/SUM/MIN/MAX
// aggregation with optional GROUP BY (spec §4.4 never emits a raw AVG —
// it is always decomposed into SUM/COUNT before reaching a worker).
//
// This is deliberately not a general SQL engine: the worker contract (spec
// §1, §6) leaves the embedded per-shard executor out of core scope, and a
// production build would swap this out for a real columnar engine. Execute
// exists so cmd/worker and the execution-engine tests have something to
// drive end to end.
func Execute(sel *sqlast.Select, input Table) (Table, error) {
	indexOf := make(map[string]int, len(input.Columns))
	for i, c := range input.Columns {
		indexOf[c] = i
	}
	for _, col := range referencedColumns(sel) {
		if col == "*" {
			continue
		}
		if _, ok := indexOf[col]; !ok {
			return Table{}, fmt.Errorf("worker: column %q not present in input table", col)
		}
	}

	filtered := make([][]any, 0, len(input.Rows))
	for _, row := range input.Rows {
		if evaluateWhere(sel.Where, row, indexOf) {
			filtered = append(filtered, row)
		}
	}

	if !sel.HasAggregates() && len(sel.GroupBy) == 0 {
		return projectPassThrough(sel, input, filtered)
	}
	return projectAggregated(sel, input, filtered, indexOf)
}

func referencedColumns(sel *sqlast.Select) []string {
	var cols []string
	for _, item := range sel.Items {
		if item.Column != "" {
			cols = append(cols, item.Column)
		}
	}
	if sel.Where != nil {
		for _, atom := range sel.Where.Atoms {
			cols = append(cols, atom.Column)
		}
	}
	cols = append(cols, sel.GroupBy...)
	return cols
}

func projectPassThrough(sel *sqlast.Select, input Table, rows [][]any) (Table, error) {
	if len(sel.Items) == 1 && sel.Items[0].Column == "*" {
		return Table{Columns: input.Columns, Types: input.Types, Rows: rows}, nil
	}

	indexOf := make(map[string]int, len(input.Columns))
	for i, c := range input.Columns {
		indexOf[c] = i
	}
	out := Table{Columns: make([]string, len(sel.Items)), Types: make([]sqlast.ColumnType, len(sel.Items))}
	for i, item := range sel.Items {
		out.Columns[i] = item.OutputName()
		out.Types[i] = input.Types[indexOf[item.Column]]
	}
	out.Rows = make([][]any, len(rows))
	for r, row := range rows {
		outRow := make([]any, len(sel.Items))
		for i, item := range sel.Items {
			outRow[i] = row[indexOf[item.Column]]
		}
		out.Rows[r] = outRow
	}
	return out, nil
}

func projectAggregated(sel *sqlast.Select, input Table, rows [][]any, indexOf map[string]int) (Table, error) {
	groups := groupRows(sel.GroupBy, rows, indexOf)

	out := Table{Columns: make([]string, len(sel.Items)), Types: make([]sqlast.ColumnType, len(sel.Items))}
	for i, item := range sel.Items {
		out.Columns[i] = item.OutputName()
		if item.IsAggregate() {
			out.Types[i] = aggregateOutputType(item, input, indexOf)
		} else {
			out.Types[i] = input.Types[indexOf[item.Column]]
		}
	}

	for _, g := range groups {
		outRow := make([]any, len(sel.Items))
		for i, item := range sel.Items {
			if item.IsAggregate() {
				outRow[i] = computeAggregate(item, g.rows, indexOf)
			} else {
				outRow[i] = g.key[item.Column]
			}
		}
		out.Rows = append(out.Rows, outRow)
	}
	return out, nil
}

func aggregateOutputType(item sqlast.SelectItem, input Table, indexOf map[string]int) sqlast.ColumnType {
	if item.Aggregate == sqlast.AggCount {
		return sqlast.TypeBigInt
	}
	if idx, ok := indexOf[item.Column]; ok {
		return input.Types[idx]
	}
	return sqlast.TypeDouble
}

type group struct {
	key  map[string]any
	rows [][]any
}

// groupRows partitions rows by the GROUP BY columns. With no GROUP BY
// columns, every row (or zero rows) forms exactly one group, matching
// scalar-mode aggregation's "always exactly one result row" rule (spec
// §8 invariant). Groups are sorted lexicographically by key so repeated
// executions are byte-identical (spec §9's fixed-reduction-order note).
func groupRows(groupBy []string, rows [][]any, indexOf map[string]int) []group {
	if len(groupBy) == 0 {
		return []group{{key: map[string]any{}, rows: rows}}
	}

	byKey := make(map[string]*group)
	var keys []string
	for _, row := range rows {
		keyParts := make([]string, len(groupBy))
		keyVals := make(map[string]any, len(groupBy))
		for i, col := range groupBy {
			v := row[indexOf[col]]
			keyVals[col] = v
			keyParts[i] = fmt.Sprintf("%v", v)
		}
		k := strings.Join(keyParts, "\x1f")
		g, ok := byKey[k]
		if !ok {
			g = &group{key: keyVals}
			byKey[k] = g
			keys = append(keys, k)
		}
		g.rows = append(g.rows, row)
	}
	sort.Strings(keys)
	out := make([]group, len(keys))
	for i, k := range keys {
		out[i] = *byKey[k]
	}
	return out
}

func computeAggregate(item sqlast.SelectItem, rows [][]any, indexOf map[string]int) any {
	if item.Aggregate == sqlast.AggCount && item.Star {
		return int64(len(rows))
	}

	idx := indexOf[item.Column]
	var values []any
	for _, row := range rows {
		if row[idx] != nil {
			values = append(values, row[idx])
		}
	}

	switch item.Aggregate {
	case sqlast.AggCount:
		return int64(len(values))
	case sqlast.AggSum:
		return sumValues(values)
	case sqlast.AggMin:
		return extremeValue(values, true)
	case sqlast.AggMax:
		return extremeValue(values, false)
	default:
		// AVG never reaches here: the planner always decomposes it into
		// SUM/COUNT before generating map_sql/reduce_sql.
		return nil
	}
}

func sumValues(values []any) any {
	if len(values) == 0 {
		return nil
	}
	if _, isFloat := values[0].(float64); isFloat {
		var sum float64
		for _, v := range values {
			f, _ := toFloat(v)
			sum += f
		}
		return sum
	}
	var sum int64
	for _, v := range values {
		switch n := v.(type) {
		case int64:
			sum += n
		default:
			f, _ := toFloat(v)
			sum += int64(f)
		}
	}
	return sum
}

func extremeValue(values []any, wantMin bool) any {
	if len(values) == 0 {
		return nil
	}
	best := values[0]
	bestF, _ := toFloat(best)
	for _, v := range values[1:] {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		if (wantMin && f < bestF) || (!wantMin && f > bestF) {
			best, bestF = v, f
		}
	}
	return best
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func evaluateWhere(where *sqlast.Where, row []any, indexOf map[string]int) bool {
	if where == nil {
		return true
	}
	for _, atom := range where.Atoms {
		if !evaluateAtom(atom, row, indexOf) {
			return false
		}
	}
	return true
}

func evaluateAtom(atom sqlast.WhereAtom, row []any, indexOf map[string]int) bool {
	value := row[indexOf[atom.Column]]

	if atom.Kind == sqlast.AtomIsNull {
		isNull := value == nil
		if atom.IsNot {
			return !isNull
		}
		return isNull
	}

	// Any comparison with NULL yields false (standard SQL semantics, spec
	// §4.4).
	if value == nil {
		return false
	}

	switch atom.Value.Kind {
	case sqlast.LiteralString:
		s, ok := value.(string)
		if !ok {
			return false
		}
		return compareOrdered(strings.Compare(s, atom.Value.Str), atom.Op)
	case sqlast.LiteralBool:
		b, ok := value.(bool)
		if !ok {
			return false
		}
		switch atom.Op {
		case sqlast.OpEq:
			return b == atom.Value.Bool
		case sqlast.OpNe:
			return b != atom.Value.Bool
		default:
			return false
		}
	case sqlast.LiteralInt, sqlast.LiteralFloat:
		f, ok := toFloat(value)
		if !ok {
			return false
		}
		lit := atom.Value.Float
		if atom.Value.Kind == sqlast.LiteralInt {
			lit = float64(atom.Value.Int)
		}
		switch {
		case f < lit:
			return compareOrdered(-1, atom.Op)
		case f > lit:
			return compareOrdered(1, atom.Op)
		default:
			return compareOrdered(0, atom.Op)
		}
	default:
		return false
	}
}

func compareOrdered(cmp int, op sqlast.CompareOp) bool {
	switch op {
	case sqlast.OpEq:
		return cmp == 0
	case sqlast.OpNe:
		return cmp != 0
	case sqlast.OpLt:
		return cmp < 0
	case sqlast.OpLe:
		return cmp <= 0
	case sqlast.OpGt:
		return cmp > 0
	case sqlast.OpGe:
		return cmp >= 0
	default:
		return false
	}
}
