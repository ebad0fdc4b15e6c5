// Package registry implements the live worker set the execution engine
// dispatches tasks through (spec §4.3): registration, heartbeats, load-based
// acquisition, and health tracking.
//
// The design is grounded directly in the retrieval pack's coordinator health
// and membership code: Registry.acquire/release plays the role of the
// teacher's ShardRegistry (a single internally-synchronized structure
// handing out assignments under one mutex), and the background TTL sweep and
// consecutive-failure bookkeeping play the role of the teacher's
// HealthMonitor (a ticking goroutine that demotes unresponsive members and
// notifies a callback on the unhealthy transition).
//
// Unlike the teacher's static shard count, MiniSnowflake's worker set is
// fully dynamic: workers appear via register, are marked unhealthy on TTL
// expiry, and disappear via deregister, so Registry tracks load (in-flight task count) rather than fixed
// shard-to-node assignments.
package registry
