// Package engine implements the execution engine (C5, spec §4.5): given a
// planner.PlannedQuery and a catalog.Manifest's shard list, it dispatches
// one map task per shard across the worker registry with bounded
// concurrency and retries, then drives an iterative tree reduce over the
// resulting partials until one remains, applying the planner's final local
// projection (AVG recomposition, column renaming) to produce the client-
// facing Result.
//
// # Grounding
//
// The map phase's bounded fan-out is grounded on the retrieval pack's
// query-executor fanOut (other_examples/…-query-executor.go): one goroutine
// per task, a buffered result channel, errors folded back on the caller's
// goroutine — generalized here from a fixed sync.WaitGroup into an
// errgroup.Group bounded by a golang.org/x/sync/semaphore.Weighted sized to
// max_in_flight, so S can exceed max_in_flight without over-subscribing
// workers. Retry/backoff and worker selection are grounded on the teacher's
// HealthMonitor's failure-threshold bookkeeping, surfaced through
// internal/registry rather than reimplemented here.
//
// # Simplification from the spec's "pipelined rounds" note
//
// Spec §4.5 allows reduce rounds to pipeline (a later round's task starting
// before an earlier round has fully drained). This implementation runs
// rounds sequentially — round N+1 only begins once every task in round N
// has completed — while still running every task within one round
// concurrently under the same max_in_flight bound. This preserves every
// testable property in spec §8 (associativity, determinism, idempotence)
// at the cost of the pipelining optimization, which needs a dataflow
// scheduler out of proportion to this core's budget; see DESIGN.md.
package engine
