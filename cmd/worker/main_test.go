package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/minisnowflake/internal/sqlast"
	"github.com/dreamware/minisnowflake/internal/storage"
	"github.com/dreamware/minisnowflake/internal/worker"
)

func TestGetenv(t *testing.T) {
	os.Setenv("MSF_TEST_KEY", "value")
	defer os.Unsetenv("MSF_TEST_KEY")
	if got := getenv("MSF_TEST_KEY", "default"); got != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}
	if got := getenv("MSF_TEST_MISSING", "default"); got != "default" {
		t.Errorf("got %q, want %q", got, "default")
	}
}

func TestMustGetenvMissingCallsExitf(t *testing.T) {
	orig := exitf
	defer func() { exitf = orig }()
	called := false
	exitf = func(format string, args ...any) { called = true }

	os.Unsetenv("MSF_TEST_MISSING")
	mustGetenv("MSF_TEST_MISSING")
	if !called {
		t.Errorf("expected exitf to be called for a missing required variable")
	}
}

func TestGetenvDurationParsesOrFallsBack(t *testing.T) {
	os.Setenv("MSF_TEST_DURATION", "2s")
	defer os.Unsetenv("MSF_TEST_DURATION")
	if got := getenvDuration("MSF_TEST_DURATION", time.Second); got != 2*time.Second {
		t.Errorf("got %v, want 2s", got)
	}
	if got := getenvDuration("MSF_TEST_DURATION_MISSING", time.Second); got != time.Second {
		t.Errorf("got %v, want default 1s", got)
	}
}

func TestHandleExecServesShardQuery(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exec := worker.NewLocalExecutorWithStore(store)
	exec.PutShard("shard-0", worker.Table{
		Columns: []string{"v"},
		Types:   []sqlast.ColumnType{sqlast.TypeDouble},
		Rows:    [][]any{{1.0}, {2.0}},
	})

	handler := handleExec(exec, zap.NewNop())

	reqBody, _ := json.Marshal(worker.ExecRequest{
		SQL:    "SELECT SUM(v) AS s FROM t",
		Inputs: []worker.InputRef{{Kind: worker.InputShard, Path: "shard-0"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out worker.ExecResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected error response: %s", out.Message)
	}
	if out.Rows[0][0].(float64) != 3.0 {
		t.Errorf("expected sum=3.0, got %v", out.Rows[0][0])
	}
}

func TestHandleExecMalformedSQLReturns400(t *testing.T) {
	exec := worker.NewLocalExecutor()
	handler := handleExec(exec, zap.NewNop())

	reqBody, _ := json.Marshal(worker.ExecRequest{SQL: "NOT VALID SQL"})
	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleExecRejectsNonPost(t *testing.T) {
	exec := worker.NewLocalExecutor()
	handler := handleExec(exec, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/exec", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleExecUnknownShardReturns500(t *testing.T) {
	exec := worker.NewLocalExecutor()
	handler := handleExec(exec, zap.NewNop())

	reqBody, _ := json.Marshal(worker.ExecRequest{
		SQL:    "SELECT * FROM t",
		Inputs: []worker.InputRef{{Kind: worker.InputShard, Path: "missing-shard"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestDeregisterPostsWorkerID(t *testing.T) {
	var gotWorkerID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req deregisterRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotWorkerID = req.WorkerID
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	deregister(context.Background(), srv.URL, "worker-1", zap.NewNop())
	if gotWorkerID != "worker-1" {
		t.Errorf("expected coordinator to receive worker-1, got %q", gotWorkerID)
	}
}

func TestDeregisterDoesNotPanicWhenCoordinatorUnreachable(t *testing.T) {
	deregister(context.Background(), "http://127.0.0.1:1", "worker-1", zap.NewNop())
}

func TestHeartbeatSucceedsOnFirstAttempt(t *testing.T) {
	var gotWorkerID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotWorkerID = req.WorkerID
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	heartbeat(context.Background(), srv.URL, "worker-1", "http://127.0.0.1:8091", zap.NewNop())
	if gotWorkerID != "worker-1" {
		t.Errorf("expected coordinator to receive worker-1, got %q", gotWorkerID)
	}
}
