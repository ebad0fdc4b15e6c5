package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dreamware/minisnowflake/internal/sqlast"
	"github.com/dreamware/minisnowflake/internal/storage"
)

// LocalExecutor is an in-process Client: it runs Execute directly instead
// of making an HTTP round trip, fronting the same reference interpreter
// cmd/worker exposes over /exec. Engine tests use it to exercise the full
// planner→dispatch→reduce pipeline without a real worker process, the same
// way the retrieval pack's query-executor tests drive fanOut against an
// in-process ClusterClient fake rather than real nodes.
//
// Every LocalExecutor instance plays the role of one worker in the
// cluster: tests construct one per simulated worker address so retries
// that "prefer a different worker" are observable. Shard bytes live behind
// a storage.Store, JSON-encoded, the way a real worker process would keep
// its loaded shards in a local blob store rather than holding decoded
// tables directly.
type LocalExecutor struct {
	store storage.Store
}

// NewLocalExecutor returns an executor with no shards loaded, backed by an
// in-memory storage.Store.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{store: storage.NewMemoryStore()}
}

// NewLocalExecutorWithStore returns an executor backed by an arbitrary
// storage.Store, for callers that want shard bytes to persist somewhere
// other than memory.
func NewLocalExecutorWithStore(store storage.Store) *LocalExecutor {
	return &LocalExecutor{store: store}
}

// PutShard registers the row data backing a shard path, as if it had been
// loaded from disk by a real worker.
func (e *LocalExecutor) PutShard(path string, t Table) {
	encoded, err := json.Marshal(t)
	if err != nil {
		panic(fmt.Sprintf("worker: encode shard %q: %v", path, err))
	}
	if err := e.store.Put(path, encoded); err != nil {
		panic(fmt.Sprintf("worker: store shard %q: %v", path, err))
	}
}

// Exec implements Client. address is ignored: LocalExecutor represents
// exactly one worker, and callers route to the right instance themselves.
func (e *LocalExecutor) Exec(_ context.Context, _ string, req ExecRequest) (Table, error) {
	req.normalizeInputs()
	stmt, err := sqlast.Parse(req.SQL)
	if err != nil {
		return Table{}, fmt.Errorf("worker: malformed map/reduce sql: %w", err)
	}
	if stmt.Select == nil {
		return Table{}, fmt.Errorf("worker: /exec only accepts SELECT statements")
	}

	input, err := e.union(req.Inputs)
	if err != nil {
		return Table{}, err
	}
	return Execute(stmt.Select, input)
}

func (e *LocalExecutor) union(inputs []InputRef) (Table, error) {
	var tables []Table
	for _, in := range inputs {
		switch in.Kind {
		case InputShard:
			raw, err := e.store.Get(in.Path)
			if err != nil {
				return Table{}, fmt.Errorf("worker: unknown shard %q: %w", in.Path, err)
			}
			var t Table
			if err := json.Unmarshal(raw, &t); err != nil {
				return Table{}, fmt.Errorf("worker: decode shard %q: %w", in.Path, err)
			}
			t.normalizeRows()
			tables = append(tables, t)
		case InputPartial:
			if in.Data == nil {
				return Table{}, fmt.Errorf("worker: partial input missing table data")
			}
			tables = append(tables, *in.Data)
		default:
			return Table{}, fmt.Errorf("worker: unknown input kind %q", in.Kind)
		}
	}
	if len(tables) == 0 {
		return Table{}, fmt.Errorf("worker: exec request carries no inputs")
	}

	out := Table{Columns: tables[0].Columns, Types: tables[0].Types}
	for _, t := range tables {
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out, nil
}
