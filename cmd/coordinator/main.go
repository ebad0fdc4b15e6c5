// Package main implements the MiniSnowflake coordinator service: the
// single control-plane process that owns the catalog, the live worker
// registry, and the query execution engine (spec §4-§6).
//
// HTTP API:
//
//	POST   /query              - plan and execute a SQL statement
//	DELETE /query/{id}         - cooperatively cancel an in-flight query
//	POST   /workers/heartbeat  - worker registration/heartbeat (spec §6)
//	POST   /workers/deregister - worker graceful-shutdown notice
//	GET    /workers            - list known workers and their health
//	GET    /health             - liveness probe
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/minisnowflake/internal/catalog"
	"github.com/dreamware/minisnowflake/internal/engine"
	"github.com/dreamware/minisnowflake/internal/registry"
	"github.com/dreamware/minisnowflake/internal/worker"
)

func main() {
	listen := getenv("COORDINATOR_LISTEN", ":8080")
	configPath := getenv("COORDINATOR_CONFIG", "")

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := engine.DefaultConfig()
	if configPath != "" {
		cfg, err = engine.LoadConfig(configPath)
		if err != nil {
			logger.Fatal("load engine config", zap.Error(err))
			return
		}
	}

	reg := registry.New(cfg.WorkerTTL, cfg.FailureThreshold, logger)
	reg.StartSweep()
	defer reg.Stop()

	srv := newServer(cfg, reg, &worker.HTTPClient{}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/query", srv.handleQuery)
	mux.HandleFunc("/query/", srv.handleDeleteQuery)
	mux.HandleFunc("/workers/heartbeat", srv.handleHeartbeat)
	mux.HandleFunc("/workers/deregister", srv.handleDeregister)
	mux.HandleFunc("/workers", srv.handleListWorkers)

	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("coordinator listening", zap.String("listen", listen))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	logger.Info("coordinator stopped")
}

// server holds the coordinator's process-wide state: one engine shared
// across queries (spec §5), one catalog instance per database path seen so
// far, and a map of in-flight queries so DELETE /query/{id} has something
// to cancel.
type server struct {
	cfg    engine.Config
	reg    *registry.Registry
	eng    *engine.Engine
	log    *zap.Logger
	nextID int64

	mu       sync.Mutex
	catalogs map[string]*catalog.Catalog
	inflight map[string]context.CancelFunc
}

func newServer(cfg engine.Config, reg *registry.Registry, client worker.Client, log *zap.Logger) *server {
	s := &server{
		cfg:      cfg,
		reg:      reg,
		log:      log,
		catalogs: make(map[string]*catalog.Catalog),
		inflight: make(map[string]context.CancelFunc),
	}
	s.eng = engine.New(cfg, reg, client, nil, log)
	return s
}

func (s *server) catalogFor(path string) (*catalog.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cat, ok := s.catalogs[path]; ok {
		return cat, nil
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return nil, err
	}
	s.catalogs[path] = cat
	return cat, nil
}

func (s *server) registerQuery(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id] = cancel
}

func (s *server) unregisterQuery(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *server) cancelQuery(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.inflight[id]
	if !ok {
		return false
	}
	cancel()
	return true
}

// nextQueryID generates an id for a caller that didn't supply one via
// query_id. Timestamp-prefixed so ids sort roughly by creation order.
func (s *server) nextQueryID() string {
	n := atomic.AddInt64(&s.nextID, 1)
	return "q-" + time.Now().UTC().Format("20060102T150405") + "-" + itoa(n)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// queryRequest is the body of POST /query (spec §6). QueryID is an
// optional client-supplied identifier: a caller that wants the ability to
// cancel mid-flight via DELETE /query/{id} from a second connection
// supplies one here, since the synchronous response itself carries no
// usable handle until the query has already finished.
type queryRequest struct {
	Path    string `json:"path"`
	Query   string `json:"query"`
	QueryID string `json:"query_id,omitempty"`
}

type queryResponse struct {
	Columns  []string `json:"columns"`
	Types    []string `json:"types"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(engine.KindParseError), err.Error())
		return
	}

	id := req.QueryID
	if id == "" {
		id = s.nextQueryID()
	}

	cat, err := s.catalogFor(req.Path)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, string(engine.KindInternal), err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	s.registerQuery(id, cancel)
	defer func() {
		cancel()
		s.unregisterQuery(id)
	}()

	result, err := s.eng.Execute(ctx, cat, req.Path, req.Query)
	if err != nil {
		s.log.Warn("query failed", zap.String("query_id", id), zap.Error(err))
		writeEngineError(w, err)
		return
	}

	types := make([]string, len(result.Types))
	for i, t := range result.Types {
		types[i] = string(t)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Query-Id", id)
	json.NewEncoder(w).Encode(queryResponse{
		Columns:  result.Columns,
		Types:    types,
		Rows:     result.Rows,
		RowCount: len(result.Rows),
	})
}

func (s *server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/query/")
	if id == "" {
		http.Error(w, "missing query id", http.StatusBadRequest)
		return
	}
	if !s.cancelQuery(id) {
		http.Error(w, "no such in-flight query", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type heartbeatRequest struct {
	WorkerID string `json:"worker_id"`
	Address  string `json:"address"`
}

func (s *server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed heartbeat body", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" || req.Address == "" {
		http.Error(w, "worker_id and address are required", http.StatusBadRequest)
		return
	}
	s.reg.Register(req.WorkerID, req.Address)
	w.WriteHeader(http.StatusOK)
}

// deregisterRequest is the body of POST /workers/deregister: a worker
// shutting down cleanly tells the coordinator to drop it immediately
// rather than leaving it to linger as a dispatch candidate until its
// worker_ttl expires (SPEC_FULL.md §4's "worker deregistration on
// shutdown").
type deregisterRequest struct {
	WorkerID string `json:"worker_id"`
}

func (s *server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed deregister body", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" {
		http.Error(w, "worker_id is required", http.StatusBadRequest)
		return
	}
	s.reg.Deregister(req.WorkerID)
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.reg.Snapshot())
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: kind, Message: message})
}

// writeEngineError maps an *engine.Error's Kind to an HTTP status per spec
// §6 ("HTTP 4xx for ParseError/NotFound/AlreadyExists and 5xx for
// TaskFailed/NoWorkers/Timeout") and writes the {"error","message"} body.
func writeEngineError(w http.ResponseWriter, err error) {
	var eerr *engine.Error
	if !errors.As(err, &eerr) {
		writeJSONError(w, http.StatusInternalServerError, string(engine.KindInternal), err.Error())
		return
	}
	writeJSONError(w, statusForKind(eerr.Kind), string(eerr.Kind), eerr.Message)
}

func statusForKind(k engine.Kind) int {
	switch k {
	case engine.KindParseError:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindAlreadyExists:
		return http.StatusConflict
	case engine.KindNoWorkers:
		return http.StatusServiceUnavailable
	case engine.KindTimeout:
		return http.StatusGatewayTimeout
	case engine.KindCancelled:
		return http.StatusServiceUnavailable
	case engine.KindTaskFailed, engine.KindSchemaMismatch, engine.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
