package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// pollInterval is how often a blocked Acquire call rechecks for newly
// available workers. Short enough that acquire_timeout is honored with
// sub-interval precision at the scales this engine runs at.
const pollInterval = 10 * time.Millisecond

// Registry is the live worker set described in spec §4.3. It is a single
// internally synchronized structure: every exported method that reads or
// changes the worker set does so under the registry's lock (Acquire
// releases it between polls), matching spec §5's "Worker Registry is
// a single internally synchronized structure; its acquire/release operations
// are atomic".
type Registry struct {
	log *zap.Logger

	ttl              time.Duration
	failureThreshold int
	sweepInterval    time.Duration

	mu       sync.Mutex
	workers  map[string]*WorkerEntry
	rrCursor int // round-robin tie-break cursor over a stable worker ordering

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// New constructs a Registry. ttl is worker_ttl: a worker whose last
// heartbeat is older than ttl is marked unhealthy by the background sweep.
// failureThreshold is the consecutive release(ok=false) count after which a
// worker is marked unhealthy (spec §4.3).
func New(ttl time.Duration, failureThreshold int, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		log:              log,
		ttl:              ttl,
		failureThreshold: failureThreshold,
		sweepInterval:    ttl / 3,
		workers:          make(map[string]*WorkerEntry),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// StartSweep launches the background goroutine that marks workers unhealthy
// once their last heartbeat exceeds worker_ttl. Safe to call at most once;
// subsequent calls are no-ops. Mirrors the teacher's HealthMonitor.Start
// ticker loop.
func (r *Registry) StartSweep() {
	r.startOnce.Do(func() {
		interval := r.sweepInterval
		if interval <= 0 {
			interval = 100 * time.Millisecond
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-r.ctx.Done():
					return
				case <-ticker.C:
					r.sweepExpired()
				}
			}
		}()
	})
}

// Stop halts the background sweep and waits for it to exit.
func (r *Registry) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) sweepExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, w := range r.workers {
		if w.Healthy && now.Sub(w.LastHeartbeat) > r.ttl {
			w.Healthy = false
			r.log.Warn("worker marked unhealthy on heartbeat expiry",
				zap.String("worker_id", id),
				zap.Duration("since_last_heartbeat", now.Sub(w.LastHeartbeat)))
		}
	}
}

// Register upserts a worker as healthy with a fresh heartbeat (spec §4.3:
// "register(worker_id, address) → upsert with healthy=true,
// last_heartbeat=now").
func (r *Registry) Register(workerID, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		w = &WorkerEntry{ID: workerID}
		r.workers[workerID] = w
	}
	w.Address = address
	w.Healthy = true
	w.LastHeartbeat = time.Now()
	w.ConsecutiveFailures = 0
}

// Deregister removes a worker immediately, for graceful shutdown. Not part
// of the core spec's minimal operation set, but needed so a worker that
// shuts down cleanly doesn't linger as a dispatch candidate until its TTL
// expires.
func (r *Registry) Deregister(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, workerID)
}

// Heartbeat refreshes a worker's last-heartbeat timestamp and marks it
// healthy again if it had expired. Unknown worker ids are ignored: a
// heartbeat racing a Deregister call is not an error.
func (r *Registry) Heartbeat(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	w.LastHeartbeat = time.Now()
	w.Healthy = true
}

// Acquire returns up to n healthy workers with the lowest in-flight task
// count, incrementing each one's count before returning (spec §4.3). Ties
// are broken round-robin over worker id. If no healthy worker is available
// immediately, Acquire polls until one appears or timeout elapses, then
// fails with ErrNoWorkers.
func (r *Registry) Acquire(ctx context.Context, n int, timeout time.Duration) ([]WorkerEntry, error) {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		got := r.acquireLocked(n)
		r.mu.Unlock()
		if len(got) > 0 {
			return got, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoWorkers
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.ctx.Done():
			return nil, ErrNoWorkers
		case <-time.After(wait):
		}
	}
}

// acquireLocked must be called with r.mu held. It picks up to n healthy
// workers ordered by (in_flight ascending, then round-robin tie-break),
// increments their in-flight counts, and returns copies.
func (r *Registry) acquireLocked(n int) []WorkerEntry {
	ids := make([]string, 0, len(r.workers))
	for id, w := range r.workers {
		if w.Healthy {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids) // stable base ordering so round-robin rotation is deterministic

	// Rotate the candidate list by rrCursor so repeated calls with equal
	// load spread work round-robin instead of always favoring the same
	// lexicographically-first worker.
	if len(ids) > 0 {
		k := r.rrCursor % len(ids)
		ids = append(ids[k:], ids[:k]...)
	}

	sort.SliceStable(ids, func(i, j int) bool {
		return r.workers[ids[i]].InFlight < r.workers[ids[j]].InFlight
	})

	if n > len(ids) {
		n = len(ids)
	}
	out := make([]WorkerEntry, 0, n)
	for _, id := range ids[:n] {
		w := r.workers[id]
		w.InFlight++
		out = append(out, *w)
	}
	r.rrCursor++
	return out
}

// Release decrements a worker's in-flight count. If ok is false the
// worker's consecutive-failure count increments and, once it reaches
// failure_threshold, the worker is marked unhealthy (spec §4.3). A
// successful release resets the failure count.
func (r *Registry) Release(workerID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, exists := r.workers[workerID]
	if !exists {
		return
	}
	if w.InFlight > 0 {
		w.InFlight--
	}
	if ok {
		w.ConsecutiveFailures = 0
		return
	}
	w.ConsecutiveFailures++
	if w.ConsecutiveFailures >= r.failureThreshold {
		w.Healthy = false
		r.log.Warn("worker marked unhealthy after repeated task failures",
			zap.String("worker_id", workerID),
			zap.Int("consecutive_failures", w.ConsecutiveFailures))
	}
}

// Snapshot returns a copy of every known worker, healthy or not. Used by the
// coordinator's supplemented GET /workers endpoint.
func (r *Registry) Snapshot() []WorkerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WorkerEntry, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	slices.SortFunc(out, func(a, b WorkerEntry) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Count returns the number of currently healthy workers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.workers {
		if w.Healthy {
			n++
		}
	}
	return n
}
