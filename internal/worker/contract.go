package worker

import (
	"context"

	"github.com/dreamware/minisnowflake/internal/sqlast"
)

// Table is the wire and in-memory shape of both a shard's rows and a
// PartialResult (spec §3): a column schema plus a row batch. Values in Rows
// are one of nil, int64, float64, bool, or string.
type Table struct {
	Columns []string            `json:"columns"`
	Types   []sqlast.ColumnType `json:"types"`
	Rows    [][]any             `json:"rows"`
}

// ColumnIndex returns the position of name in Columns, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// integerTypes is the set of ColumnTypes whose values round-trip through
// JSON as int64 rather than float64.
var integerTypes = map[sqlast.ColumnType]bool{
	sqlast.TypeTinyInt:   true,
	sqlast.TypeSmallInt:  true,
	sqlast.TypeInt:       true,
	sqlast.TypeBigInt:    true,
	sqlast.TypeBignum:    true,
	sqlast.TypeUTinyInt:  true,
	sqlast.TypeUSmallInt: true,
	sqlast.TypeUInt:      true,
	sqlast.TypeUBigInt:   true,
}

// normalizeRows repairs a Table decoded by encoding/json, which turns every
// JSON number into float64 and loses the int64/float64 distinction this
// package relies on (interpreter.go and engine.go both type-assert on
// Table values per their declared ColumnType). Called once after any
// json.Unmarshal of a Table, never needed for values that never left
// process memory.
func (t *Table) normalizeRows() {
	for _, row := range t.Rows {
		for i, v := range row {
			if v == nil || i >= len(t.Types) {
				continue
			}
			if f, ok := v.(float64); ok && integerTypes[t.Types[i]] {
				row[i] = int64(f)
			}
		}
	}
}

// InputKind distinguishes a map task's shard input from a reduce task's
// partial-result input (spec §6's /exec "inputs" field).
type InputKind string

const (
	InputShard   InputKind = "shard"
	InputPartial InputKind = "partial"
)

// InputRef is one entry of an ExecRequest's Inputs list: either a shard
// file reference (opaque path, resolved by the worker) or a partial result
// handed back from an earlier task in the same query.
type InputRef struct {
	Kind InputKind `json:"kind"`
	Path string    `json:"path,omitempty"` // meaningful when Kind == InputShard
	Data *Table    `json:"data,omitempty"` // meaningful when Kind == InputPartial
}

// ExecRequest is the body of a Coordinator→Worker POST /exec call (spec
// §6). SQL is either a map_sql (single shard input) or a reduce_sql
// (≥2 partial inputs, unioned before SQL is applied).
type ExecRequest struct {
	SQL        string     `json:"sql"`
	Inputs     []InputRef `json:"inputs"`
	DeadlineMs int64      `json:"deadline_ms"`
}

// normalizeInputs repairs every embedded partial Table the same way
// normalizeRows repairs a top-level Table; needed once on the server side
// of a real HTTP /exec call, where req arrived via json.Unmarshal.
func (r *ExecRequest) normalizeInputs() {
	for i := range r.Inputs {
		if r.Inputs[i].Data != nil {
			r.Inputs[i].Data.normalizeRows()
		}
	}
}

// ExecResponse is the body of a worker's /exec reply: either a Table or an
// error kind/message pair, following the same {"error", "message"} shape as
// the coordinator's client-facing error responses.
type ExecResponse struct {
	Table
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client is how the execution engine dispatches a single map or reduce
// task to a worker (spec §4.5). Exec must be safe for concurrent use.
type Client interface {
	Exec(ctx context.Context, address string, req ExecRequest) (Table, error)
}
