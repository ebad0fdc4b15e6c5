// Package worker defines the coordinator-side contract for the per-shard
// executor the spec deliberately leaves at the interface level (spec §1:
// "a conforming implementation may embed any columnar SQL engine behind the
// worker contract"). It provides:
//
//   - Table, the wire/in-memory shape of a shard or PartialResult (spec §3).
//   - Client, the interface the execution engine dispatches map and reduce
//     tasks through, and an HTTPClient implementation of it grounded on the
//     retrieval pack's cluster.PostJSON/GetJSON helpers.
//   - a reference row-at-a-time interpreter (interpreter.go) for the small
//     SQL subset the planner ever emits as map_sql/reduce_sql, and a
//     LocalExecutor that runs it in-process. cmd/worker hosts LocalExecutor
//     behind the /exec HTTP endpoint; engine tests drive it directly without
//     a network hop.
package worker
