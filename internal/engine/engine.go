package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/minisnowflake/internal/catalog"
	"github.com/dreamware/minisnowflake/internal/planner"
	"github.com/dreamware/minisnowflake/internal/registry"
	"github.com/dreamware/minisnowflake/internal/sqlast"
	"github.com/dreamware/minisnowflake/internal/worker"
)

// Result is the client-facing answer to a query: the same shape as a
// worker.Table, since by the time the engine is done a Result IS just the
// final (possibly locally re-projected) partial.
type Result = worker.Table

// Loader materializes an INSERT INTO ... FROM statement's source path into
// shard files and returns their descriptors. The core leaves CSV/Parquet
// I/O out of scope (spec §1); a real deployment wires a concrete Loader,
// the core only needs the append-shards half of the operation.
type Loader interface {
	Load(ctx context.Context, sourcePath string, rowsPerShard int) ([]catalog.ShardRef, error)
}

// Engine executes one query at a time per call; a single Engine value is
// shared across concurrent queries (spec §5: "parallel across tasks within
// a single query and across queries").
type Engine struct {
	cfg      Config
	registry *registry.Registry
	client   worker.Client
	loader   Loader
	log      *zap.Logger
}

// New constructs an Engine. loader may be nil; INSERT INTO ... FROM then
// fails with KindInternal instead of silently doing nothing.
func New(cfg Config, reg *registry.Registry, client worker.Client, loader Loader, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, registry: reg, client: client, loader: loader, log: log}
}

// Execute runs a single SQL statement against the catalog rooted at
// dbPath, dispatching SELECTs through the map/reduce pipeline and routing
// DDL/DML to the catalog directly.
func (e *Engine) Execute(ctx context.Context, cat *catalog.Catalog, dbPath, sql string) (Result, error) {
	stmt, err := sqlast.Parse(sql)
	if err != nil {
		return Result{}, newError(KindParseError, err.Error(), err)
	}

	switch {
	case stmt.CreateTable != nil:
		return Result{}, e.execCreateTable(cat, stmt.CreateTable)
	case stmt.DropTable != nil:
		return Result{}, e.execDropTable(cat, stmt.DropTable)
	case stmt.InsertFrom != nil:
		return Result{}, e.execInsertFrom(ctx, cat, stmt.InsertFrom)
	case stmt.Select != nil:
		return e.execSelect(ctx, cat, stmt.Select)
	default:
		return Result{}, newError(KindInternal, "parser returned an empty statement", nil)
	}
}

func (e *Engine) execCreateTable(cat *catalog.Catalog, ct *sqlast.CreateTable) error {
	schema := catalog.Schema{Columns: make([]catalog.ColumnSchema, len(ct.Columns))}
	for i, c := range ct.Columns {
		schema.Columns[i] = catalog.ColumnSchema{Name: c.Name, Type: c.Type, NotNull: c.NotNull}
	}
	if err := cat.CreateTable(ct.Table, schema, ct.IfNotExists); err != nil {
		return wrapCatalogError(err)
	}
	return nil
}

func (e *Engine) execDropTable(cat *catalog.Catalog, dt *sqlast.DropTable) error {
	if err := cat.DropTable(dt.Table, dt.IfExists); err != nil {
		return wrapCatalogError(err)
	}
	return nil
}

func (e *Engine) execInsertFrom(ctx context.Context, cat *catalog.Catalog, ins *sqlast.InsertFrom) error {
	if e.loader == nil {
		return newError(KindInternal, "no shard loader configured for INSERT INTO ... FROM", nil)
	}
	rowsPerShard := ins.RowsPerShard
	if rowsPerShard < 0 {
		rowsPerShard = e.cfg.DefaultRowsPerShard
	}
	shards, err := e.loader.Load(ctx, ins.SourcePath, rowsPerShard)
	if err != nil {
		return newError(KindInternal, "load shards from "+ins.SourcePath, err)
	}
	if _, err := cat.AppendShards(ins.Table, shards); err != nil {
		return wrapCatalogError(err)
	}
	return nil
}

func wrapCatalogError(err error) error {
	switch err.(type) {
	case *catalog.NotFoundError:
		return newError(KindNotFound, err.Error(), err)
	case *catalog.AlreadyExistsError:
		return newError(KindAlreadyExists, err.Error(), err)
	default:
		return newError(KindInternal, "catalog operation failed", err)
	}
}

func (e *Engine) execSelect(ctx context.Context, cat *catalog.Catalog, sel *sqlast.Select) (Result, error) {
	manifest, err := cat.OpenManifest(sel.Table)
	if err != nil {
		return Result{}, wrapCatalogError(err)
	}

	pq, err := planner.Plan(sel, manifest.Schema)
	if err != nil {
		switch err.(type) {
		case *planner.ColumnNotFoundError, *planner.UnsupportedShapeError:
			return Result{}, newError(KindParseError, err.Error(), err)
		default:
			return Result{}, newError(KindInternal, "planning failed", err)
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	return e.runPlannedQuery(queryCtx, pq, manifest.Shards)
}

func (e *Engine) runPlannedQuery(ctx context.Context, pq *planner.PlannedQuery, shards []catalog.ShardRef) (Result, error) {
	if len(shards) == 0 {
		return emptyResult(pq), nil
	}

	partials, err := e.runMapPhase(ctx, pq, shards)
	if err != nil {
		return Result{}, err
	}

	if pq.Mode == planner.PassThrough {
		return concatPartials(pq, partials), nil
	}

	final, err := e.runReducePhase(ctx, pq, partials)
	if err != nil {
		return Result{}, err
	}
	return applyFinalProjection(pq, final)
}

// emptyResult handles a table with no shards: scalar aggregation still
// must return exactly one row (COUNT=0, SUM/MIN/MAX/AVG=NULL); grouped
// aggregation and pass-through both correctly return zero rows.
func emptyResult(pq *planner.PlannedQuery) Result {
	names := make([]string, len(pq.OutputSchema))
	types := make([]sqlast.ColumnType, len(pq.OutputSchema))
	for i, c := range pq.OutputSchema {
		names[i] = c.Name
		types[i] = c.Type
	}
	out := Result{Columns: names, Types: types}
	if pq.Mode == planner.Scalar {
		row := make([]any, len(pq.Projections))
		for i, proj := range pq.Projections {
			if proj.IsAggregate && proj.Aggregate == sqlast.AggCount {
				row[i] = int64(0)
			} else {
				row[i] = nil
			}
		}
		out.Rows = [][]any{row}
	}
	return out
}

func concatPartials(pq *planner.PlannedQuery, partials []worker.Table) Result {
	names := make([]string, len(pq.OutputSchema))
	types := make([]sqlast.ColumnType, len(pq.OutputSchema))
	for i, c := range pq.OutputSchema {
		names[i] = c.Name
		types[i] = c.Type
	}
	out := Result{Columns: names, Types: types}
	for _, p := range partials {
		out.Rows = append(out.Rows, p.Rows...)
	}
	return out
}

func applyFinalProjection(pq *planner.PlannedQuery, final worker.Table) (Result, error) {
	indexOf := make(map[string]int, len(final.Columns))
	for i, c := range final.Columns {
		indexOf[c] = i
	}

	names := make([]string, len(pq.OutputSchema))
	types := make([]sqlast.ColumnType, len(pq.OutputSchema))
	for i, c := range pq.OutputSchema {
		names[i] = c.Name
		types[i] = c.Type
	}
	out := Result{Columns: names, Types: types}

	for _, row := range final.Rows {
		outRow := make([]any, len(pq.Projections))
		for i, proj := range pq.Projections {
			if !proj.IsAggregate {
				idx, ok := indexOf[proj.SourceColumn]
				if !ok {
					return Result{}, newError(KindSchemaMismatch, "group column "+proj.SourceColumn+" missing from reduced partial", nil)
				}
				outRow[i] = row[idx]
				continue
			}
			val, err := recomposeAggregate(proj, row, indexOf)
			if err != nil {
				return Result{}, err
			}
			outRow[i] = val
		}
		out.Rows = append(out.Rows, outRow)
	}
	return out, nil
}

func recomposeAggregate(proj planner.Projection, row []any, indexOf map[string]int) (any, error) {
	if proj.Aggregate != sqlast.AggAvg {
		idx, ok := indexOf[proj.Intermediates[0]]
		if !ok {
			return nil, newError(KindSchemaMismatch, "intermediate column "+proj.Intermediates[0]+" missing from reduced partial", nil)
		}
		return row[idx], nil
	}

	sumIdx, ok1 := indexOf[proj.Intermediates[0]]
	cntIdx, ok2 := indexOf[proj.Intermediates[1]]
	if !ok1 || !ok2 {
		return nil, newError(KindSchemaMismatch, "AVG intermediate columns missing from reduced partial", nil)
	}
	cnt := row[cntIdx]
	if cnt == nil || toInt64(cnt) == 0 {
		return nil, nil
	}
	sum := toFloat64(row[sumIdx])
	return sum / float64(toInt64(cnt)), nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// --- map phase ---

func (e *Engine) runMapPhase(ctx context.Context, pq *planner.PlannedQuery, shards []catalog.ShardRef) ([]worker.Table, error) {
	workerCount := e.registry.Count()
	if workerCount <= 0 {
		workerCount = 1
	}
	limit := e.cfg.inFlightLimit(workerCount)

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(limit))
	partials := make([]worker.Table, len(shards))

	for i, shard := range shards {
		i, shard := i, shard
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, classifyContextError(ctx, err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			result, err := e.runTask(gctx, pq.MapSQL, []worker.InputRef{{Kind: worker.InputShard, Path: shard.Path}})
			if err != nil {
				return err
			}
			partials[i] = result
			return nil
		})
	}

	if err := e.waitWithGrace(ctx, g); err != nil {
		return nil, err
	}
	return partials, nil
}

// --- reduce phase ---

func (e *Engine) runReducePhase(ctx context.Context, pq *planner.PlannedQuery, partials []worker.Table) (worker.Table, error) {
	current := partials
	for len(current) > 1 {
		groups := partitionFanin(current, e.cfg.ReduceFanin)

		workerCount := e.registry.Count()
		if workerCount <= 0 {
			workerCount = 1
		}
		limit := e.cfg.inFlightLimit(workerCount)

		g, gctx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(int64(limit))
		next := make([]worker.Table, len(groups))

		for gi, group := range groups {
			gi, group := gi, group
			if len(group) == 1 {
				next[gi] = group[0]
				continue
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				return worker.Table{}, classifyContextError(ctx, err)
			}
			g.Go(func() error {
				defer sem.Release(1)
				inputs := make([]worker.InputRef, len(group))
				for i, p := range group {
					p := p
					inputs[i] = worker.InputRef{Kind: worker.InputPartial, Data: &p}
				}
				result, err := e.runTask(gctx, pq.ReduceSQL, inputs)
				if err != nil {
					return err
				}
				next[gi] = result
				return nil
			})
		}

		if err := e.waitWithGrace(ctx, g); err != nil {
			return worker.Table{}, err
		}
		current = next
	}
	return current[0], nil
}

// partitionFanin splits items into groups of up to fanin size. A
// non-positive fanin falls back to the spec default of 8.
func partitionFanin(items []worker.Table, fanin int) [][]worker.Table {
	if fanin <= 0 {
		fanin = 8
	}
	var groups [][]worker.Table
	for i := 0; i < len(items); i += fanin {
		end := i + fanin
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[i:end])
	}
	return groups
}

// --- single task dispatch with retry ---

const (
	retryBaseDelay = 20 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

func (e *Engine) runTask(ctx context.Context, sql string, inputs []worker.InputRef) (worker.Table, error) {
	maxRetries := e.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return worker.Table{}, classifyContextError(ctx, ctx.Err())
		}

		workers, err := e.registry.Acquire(ctx, 1, e.cfg.AcquireTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return worker.Table{}, classifyContextError(ctx, err)
			}
			return worker.Table{}, newError(KindNoWorkers, "no healthy worker available within acquire_timeout", err)
		}
		w := workers[0]

		taskCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
		result, execErr := e.client.Exec(taskCtx, w.Address, worker.ExecRequest{
			SQL:        sql,
			Inputs:     inputs,
			DeadlineMs: e.cfg.TaskTimeout.Milliseconds(),
		})
		timedOut := taskCtx.Err() == context.DeadlineExceeded
		cancel()

		if execErr == nil {
			e.registry.Release(w.ID, true)
			return result, nil
		}
		e.registry.Release(w.ID, false)

		// A query that was cancelled or hit query_timeout unwinds as
		// Cancelled/Timeout, not as a failure of this task.
		if ctx.Err() != nil {
			return worker.Table{}, classifyContextError(ctx, ctx.Err())
		}
		if timedOut {
			lastErr = newError(KindTimeout, "task exceeded task_timeout", execErr)
		} else {
			lastErr = newError(KindTaskFailed, "worker task failed", execErr)
		}

		if attempt == maxRetries || !IsRetryable(lastErr) {
			break
		}
		e.log.Warn("retrying task after failure",
			zap.Int("attempt", attempt+1),
			zap.String("worker_id", w.ID),
			zap.Error(lastErr))
		time.Sleep(backoffDelay(attempt))
	}

	if e, ok := lastErr.(*Error); ok && e.Kind == KindTimeout {
		return worker.Table{}, newError(KindTaskFailed, "task failed after exhausting retries", lastErr)
	}
	return worker.Table{}, lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay << uint(attempt)
	if d > retryMaxDelay || d <= 0 {
		return retryMaxDelay
	}
	return d
}

func classifyContextError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return newError(KindTimeout, "query_timeout exceeded", err)
	}
	return newError(KindCancelled, "query cancelled", err)
}

// waitWithGrace waits for g to finish. If ctx is already done (or becomes
// done while waiting) it allows at most cancel_grace more time before
// abandoning outstanding tasks and returning (spec §4.5's cancellation
// state machine: refuse new dispatch, best-effort cancel in flight,
// await cancel_grace, then abandon).
func (e *Engine) waitWithGrace(ctx context.Context, g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		grace := e.cfg.CancelGrace
		if grace <= 0 {
			grace = 2 * time.Second
		}
		select {
		case err := <-done:
			return err
		case <-time.After(grace):
			return classifyContextError(ctx, ctx.Err())
		}
	}
}
