package planner

import "fmt"

// ColumnNotFoundError reports that a SELECT referenced a column absent from
// the resolved table schema. The parser cannot catch this: it performs no
// name resolution (spec §4.1).
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
}

// UnsupportedShapeError reports a statement shape the planner has no rule
// for, such as a GROUP BY with no aggregates in the SELECT list (spec §4.4
// defines rules only for pass-through, scalar, and grouped aggregation).
type UnsupportedShapeError struct {
	Reason string
}

func (e *UnsupportedShapeError) Error() string {
	return "unsupported query shape: " + e.Reason
}
