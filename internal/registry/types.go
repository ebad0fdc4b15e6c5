package registry

import "time"

// WorkerEntry is one worker's membership record (spec §3): its address, last
// heartbeat, current in-flight task count, and health. Values returned from
// Registry are always copies; mutating one has no effect on the registry.
type WorkerEntry struct {
	ID                  string
	Address             string
	LastHeartbeat       time.Time
	InFlight            int
	Healthy             bool
	ConsecutiveFailures int
}
