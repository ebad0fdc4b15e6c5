package planner

import "github.com/dreamware/minisnowflake/internal/sqlast"

// AggregationMode is the shape the execution engine must drive: pass_through
// concatenates partials, scalar and grouped reduce them (spec §3).
type AggregationMode string

const (
	PassThrough AggregationMode = "pass_through"
	Scalar      AggregationMode = "scalar"
	Grouped     AggregationMode = "grouped"
)

// OutputColumn is one column of a PlannedQuery's final result schema.
type OutputColumn struct {
	Name string
	Type sqlast.ColumnType
}

// Projection describes how the execution engine derives one final output
// column from the (possibly still-intermediate) columns of the last
// remaining PartialResult, once reduction is complete. Only used in scalar
// and grouped mode; pass-through mode's worker responses already carry
// final column names because map_sql is the user's statement verbatim.
type Projection struct {
	// Output is the final column name (the SELECT item's alias or derived
	// name).
	Output string

	// IsAggregate distinguishes a GROUP BY passthrough column (false) from
	// an aggregate result (true).
	IsAggregate bool

	// SourceColumn is the column to copy verbatim when IsAggregate is
	// false (a GROUP BY column carried through map/reduce unchanged).
	SourceColumn string

	// Aggregate is the original aggregate function, meaningful only when
	// IsAggregate is true.
	Aggregate sqlast.AggregateFunc

	// Intermediates names the reduce-stage column(s) to read for this
	// aggregate: one column for COUNT/SUM/MIN/MAX, two (sum, count) for
	// AVG, in that order.
	Intermediates []string
}

// PlannedQuery is the planner's output: the immutable tuple described in
// spec §3.
type PlannedQuery struct {
	MapSQL       string
	ReduceSQL    string // empty string means "no reduce phase" (pass-through)
	OutputSchema []OutputColumn
	Mode         AggregationMode
	GroupBy      []string
	Projections  []Projection // empty in pass-through mode
	Table        string
}
