// Package planner implements the query planner (spec §4.4): it rewrites a
// parsed, catalog-resolved SELECT into a PlannedQuery carrying the map-phase
// SQL text run per shard, the optional reduce-phase SQL text run over
// groups of partials, and enough metadata for the execution engine to
// recompose AVG and rename columns in its final local projection.
//
// # Convention: map_sql and reduce_sql share one FROM-table name
//
// The worker RPC contract (spec §6) carries the distinction between
// "run over a shard" and "run over partials" in the /exec request's inputs
// field, not in the SQL text itself: a worker resolves whichever relation
// the inputs reference and binds it to the table name the SQL references.
// This lets map_sql and reduce_sql both simply name the original table,
// the same way the retrieval pack's query executor (see
// other_examples/…-query-executor.go) treats a scatter-gather fan-out and
// its local aggregation step as the same statement shape run against
// different row sources.
//
// # Intermediate columns
//
// Aggregate rewrites (spec §4.4 table) introduce one or two synthetic
// columns per aggregate, named _c_N / _s_i / _m_i / _sum_i / _cnt_i where N
// is the SELECT item's index. These names are stable across every reduce
// round: a reduce task's output schema is exactly its input schema, so the
// tree reduce in C5 never needs to know how many rounds remain. Only the
// engine's single final local projection (spec §4.5) translates intermediate
// columns into the user's requested output names, at which point AVG's
// SUM/COUNT decomposition is recomposed.
package planner
