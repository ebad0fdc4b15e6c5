// Package main implements a reference MiniSnowflake worker process: it
// registers with the coordinator, heartbeats periodically, and serves the
// map/reduce `/exec` RPC (spec §6) against shard and partial-result data
// backed by a shared filesystem directory.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/minisnowflake/internal/sqlast"
	"github.com/dreamware/minisnowflake/internal/storage"
	"github.com/dreamware/minisnowflake/internal/worker"
)

// exitf terminates the process with a formatted message. A variable so
// tests can intercept it instead of killing the test process, mirroring
// the teacher's logFatal indirection.
var exitf = log.Fatalf

// logFatal is a variable so tests can intercept a fatal startup failure
// without killing the test process.
var logFatal = func(logger *zap.Logger, msg string, fields ...zap.Field) {
	logger.Fatal(msg, fields...)
}

func main() {
	workerID := mustGetenv("WORKER_ID")
	listen := getenv("WORKER_LISTEN", ":8091")
	public := getenv("WORKER_ADDR", "http://127.0.0.1:8091")
	coord := mustGetenv("COORDINATOR_ADDR")
	shardDir := getenv("WORKER_SHARD_DIR", "./data/shards")
	heartbeatInterval := getenvDuration("WORKER_HEARTBEAT_INTERVAL", 5*time.Second)

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	store, err := storage.NewFileStore(shardDir)
	if err != nil {
		logFatal(logger, "open shard store", zap.Error(err))
		return
	}
	exec := worker.NewLocalExecutorWithStore(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/exec", handleExec(exec, logger))

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker listening",
			zap.String("worker_id", workerID), zap.String("listen", listen), zap.String("public", public))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal(logger, "listen", zap.Error(err))
		}
	}()

	heartbeat(context.Background(), coord, workerID, public, logger)
	stopHeartbeat := make(chan struct{})
	go heartbeatLoop(coord, workerID, public, heartbeatInterval, stopHeartbeat, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	close(stopHeartbeat)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	deregister(shutdownCtx, coord, workerID, logger)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	logger.Info("worker stopped", zap.String("worker_id", workerID))
}

// handleExec serves the Coordinator→Worker RPC from spec §6.
func handleExec(exec *worker.LocalExecutor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req worker.ExecRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeExecError(w, http.StatusBadRequest, "ParseError", err.Error())
			return
		}

		ctx := r.Context()
		var cancel context.CancelFunc
		if req.DeadlineMs > 0 {
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.DeadlineMs)*time.Millisecond)
			defer cancel()
		}

		table, err := exec.Exec(ctx, "", req)
		var perr *sqlast.ParseError
		if errors.As(err, &perr) {
			writeExecError(w, http.StatusBadRequest, "ParseError", err.Error())
			return
		}
		if err != nil {
			logger.Warn("exec failed", zap.Error(err))
			writeExecError(w, http.StatusInternalServerError, "TaskFailed", err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(worker.ExecResponse{Table: table})
	}
}

func writeExecError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(worker.ExecResponse{Error: kind, Message: message})
}

type heartbeatRequest struct {
	WorkerID string `json:"worker_id"`
	Address  string `json:"address"`
}

// heartbeat sends one heartbeat, retrying up to 10 times with a fixed 400ms
// pause between attempts to tolerate a coordinator that hasn't finished
// starting up yet.
func heartbeat(ctx context.Context, coordAddr, workerID, address string, logger *zap.Logger) {
	body, _ := json.Marshal(heartbeatRequest{WorkerID: workerID, Address: address})

	const maxAttempts = 10
	delay := 400 * time.Millisecond
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, coordAddr+"/workers/heartbeat", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			resp, err := httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					logger.Info("registered with coordinator", zap.String("coordinator", coordAddr))
					return
				}
			}
		}
		logger.Warn("heartbeat attempt failed, retrying", zap.Int("attempt", attempt))
		time.Sleep(delay)
	}
	logFatal(logger, "failed to reach coordinator after retries", zap.String("coordinator", coordAddr))
}

type deregisterRequest struct {
	WorkerID string `json:"worker_id"`
}

// deregister tells the coordinator this worker is shutting down cleanly, so
// it is dropped immediately instead of lingering as a dispatch candidate
// until its heartbeat expires. Best-effort: a failure here just means the
// coordinator falls back to TTL expiry, so it never blocks shutdown.
func deregister(ctx context.Context, coordAddr, workerID string, logger *zap.Logger) {
	body, _ := json.Marshal(deregisterRequest{WorkerID: workerID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, coordAddr+"/workers/deregister", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		logger.Warn("deregister failed", zap.Error(err))
		return
	}
	resp.Body.Close()
}

// heartbeatLoop re-sends a heartbeat every interval until stop is closed,
// per spec §6: "Periodic, interval ≤ worker_ttl/3".
func heartbeatLoop(coordAddr, workerID, address string, interval time.Duration, stop <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	body, _ := json.Marshal(heartbeatRequest{WorkerID: workerID, Address: address})
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			req, err := http.NewRequest(http.MethodPost, coordAddr+"/workers/heartbeat", bytes.NewReader(body))
			if err != nil {
				continue
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := httpClient.Do(req)
			if err != nil {
				logger.Warn("heartbeat failed", zap.Error(err))
				continue
			}
			resp.Body.Close()
		}
	}
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustGetenv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		exitf("missing required environment variable %s", key)
	}
	return v
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
