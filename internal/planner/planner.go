package planner

import (
	"fmt"
	"strings"

	"github.com/dreamware/minisnowflake/internal/catalog"
	"github.com/dreamware/minisnowflake/internal/sqlast"
)

// Plan rewrites sel, resolved against schema, into a PlannedQuery (spec
// §4.4). schema must be the current schema of sel.Table as returned by
// catalog.Catalog.OpenManifest.
func Plan(sel *sqlast.Select, schema catalog.Schema) (*PlannedQuery, error) {
	if err := resolveColumns(sel, schema); err != nil {
		return nil, err
	}

	switch {
	case !sel.HasAggregates() && len(sel.GroupBy) == 0:
		return planPassThrough(sel, schema)
	case !sel.HasAggregates():
		return nil, &UnsupportedShapeError{Reason: "GROUP BY without any aggregate in the SELECT list"}
	case len(sel.GroupBy) == 0:
		return planAggregation(sel, schema, Scalar)
	default:
		return planAggregation(sel, schema, Grouped)
	}
}

// resolveColumns checks every bare column name referenced by the statement
// (projection, WHERE, GROUP BY) against schema, since the parser performs no
// name resolution.
func resolveColumns(sel *sqlast.Select, schema catalog.Schema) error {
	check := func(col string) error {
		if col == "" || col == "*" {
			return nil
		}
		if _, ok := schema.Lookup(col); !ok {
			return &ColumnNotFoundError{Table: sel.Table, Column: col}
		}
		return nil
	}
	for _, item := range sel.Items {
		if err := check(item.Column); err != nil {
			return err
		}
	}
	if sel.Where != nil {
		for _, atom := range sel.Where.Atoms {
			if err := check(atom.Column); err != nil {
				return err
			}
		}
	}
	for _, col := range sel.GroupBy {
		if err := check(col); err != nil {
			return err
		}
	}
	return nil
}

func planPassThrough(sel *sqlast.Select, schema catalog.Schema) (*PlannedQuery, error) {
	var outCols []OutputColumn
	if len(sel.Items) == 1 && sel.Items[0].Column == "*" {
		for _, c := range schema.Columns {
			outCols = append(outCols, OutputColumn{Name: c.Name, Type: c.Type})
		}
	} else {
		for _, item := range sel.Items {
			colSchema, _ := schema.Lookup(item.Column)
			outCols = append(outCols, OutputColumn{Name: item.OutputName(), Type: colSchema.Type})
		}
	}

	return &PlannedQuery{
		MapSQL:       serializeSelect(sel.Items, sel.Table, sel.Where, nil),
		ReduceSQL:    "",
		OutputSchema: outCols,
		Mode:         PassThrough,
		Table:        sel.Table,
	}, nil
}

func planAggregation(sel *sqlast.Select, schema catalog.Schema, mode AggregationMode) (*PlannedQuery, error) {
	var (
		mapItems    []string
		reduceItems []string
		outCols     []OutputColumn
		projections []Projection
	)

	// GROUP BY columns pass through map and reduce unchanged, and are
	// copied verbatim into the engine's final projection.
	for _, col := range sel.GroupBy {
		mapItems = append(mapItems, col)
		reduceItems = append(reduceItems, col)
	}

	for i, item := range sel.Items {
		if !item.IsAggregate() {
			colSchema, _ := schema.Lookup(item.Column)
			outCols = append(outCols, OutputColumn{Name: item.OutputName(), Type: colSchema.Type})
			projections = append(projections, Projection{
				Output:       item.OutputName(),
				IsAggregate:  false,
				SourceColumn: item.Column,
			})
			continue
		}

		mapExpr, reduceExpr, intermediates, outType := rewriteAggregate(item, i, schema)
		mapItems = append(mapItems, mapExpr)
		reduceItems = append(reduceItems, reduceExpr)
		outCols = append(outCols, OutputColumn{Name: item.OutputName(), Type: outType})
		projections = append(projections, Projection{
			Output:        item.OutputName(),
			IsAggregate:   true,
			Aggregate:     item.Aggregate,
			Intermediates: intermediates,
		})
	}

	mapSQL := fmt.Sprintf("SELECT %s FROM %s", strings.Join(mapItems, ", "), sel.Table)
	if w := sel.Where.String(); w != "" {
		mapSQL += " WHERE " + w
	}
	if len(sel.GroupBy) > 0 {
		mapSQL += " GROUP BY " + strings.Join(sel.GroupBy, ", ")
	}

	reduceSQL := fmt.Sprintf("SELECT %s FROM %s", strings.Join(reduceItems, ", "), sel.Table)
	if len(sel.GroupBy) > 0 {
		reduceSQL += " GROUP BY " + strings.Join(sel.GroupBy, ", ")
	}

	return &PlannedQuery{
		MapSQL:       mapSQL,
		ReduceSQL:    reduceSQL,
		OutputSchema: outCols,
		Mode:         mode,
		GroupBy:      sel.GroupBy,
		Projections:  projections,
		Table:        sel.Table,
	}, nil
}

// rewriteAggregate applies the map/reduce rewrite table from spec §4.4 to a
// single aggregate SELECT item, returning its map-phase expression,
// reduce-phase expression, the intermediate column name(s) it introduces,
// and the final output column's type.
func rewriteAggregate(item sqlast.SelectItem, index int, schema catalog.Schema) (mapExpr, reduceExpr string, intermediates []string, outType sqlast.ColumnType) {
	switch item.Aggregate {
	case sqlast.AggCount:
		name := fmt.Sprintf("_c_%d", index)
		arg := "*"
		if !item.Star {
			arg = item.Column
		}
		return fmt.Sprintf("COUNT(%s) AS %s", arg, name),
			fmt.Sprintf("SUM(%s) AS %s", name, name),
			[]string{name}, sqlast.TypeBigInt

	case sqlast.AggSum:
		name := fmt.Sprintf("_s_%d", index)
		colSchema, _ := schema.Lookup(item.Column)
		return fmt.Sprintf("SUM(%s) AS %s", item.Column, name),
			fmt.Sprintf("SUM(%s) AS %s", name, name),
			[]string{name}, colSchema.Type

	case sqlast.AggMin:
		name := fmt.Sprintf("_m_%d", index)
		colSchema, _ := schema.Lookup(item.Column)
		return fmt.Sprintf("MIN(%s) AS %s", item.Column, name),
			fmt.Sprintf("MIN(%s) AS %s", name, name),
			[]string{name}, colSchema.Type

	case sqlast.AggMax:
		name := fmt.Sprintf("_m_%d", index)
		colSchema, _ := schema.Lookup(item.Column)
		return fmt.Sprintf("MAX(%s) AS %s", item.Column, name),
			fmt.Sprintf("MAX(%s) AS %s", name, name),
			[]string{name}, colSchema.Type

	case sqlast.AggAvg:
		sumName := fmt.Sprintf("_sum_%d", index)
		cntName := fmt.Sprintf("_cnt_%d", index)
		mapExpr := fmt.Sprintf("SUM(%s) AS %s, COUNT(%s) AS %s", item.Column, sumName, item.Column, cntName)
		reduceExpr := fmt.Sprintf("SUM(%s) AS %s, SUM(%s) AS %s", sumName, sumName, cntName, cntName)
		return mapExpr, reduceExpr, []string{sumName, cntName}, sqlast.TypeDouble

	default:
		// Unreachable: the parser only ever constructs one of the five
		// AggregateFunc values above.
		return "", "", nil, sqlast.TypeDouble
	}
}

// serializeSelect reconstructs SELECT ... FROM ... [WHERE ...] text for
// pass-through mode, where map_sql must be the user's statement verbatim
// (spec §4.4 rule 1).
func serializeSelect(items []sqlast.SelectItem, table string, where *sqlast.Where, groupBy []string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = serializeSelectItem(item)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(parts, ", "), table)
	if w := where.String(); w != "" {
		sql += " WHERE " + w
	}
	if len(groupBy) > 0 {
		sql += " GROUP BY " + strings.Join(groupBy, ", ")
	}
	return sql
}

func serializeSelectItem(item sqlast.SelectItem) string {
	if item.Column == "*" {
		return "*"
	}
	text := item.Column
	if item.Alias != "" {
		text += " AS " + item.Alias
	}
	return text
}
