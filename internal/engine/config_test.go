package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tasks_per_worker: 5\nreduce_fanin: 4\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TasksPerWorker != 5 {
		t.Errorf("expected tasks_per_worker=5, got %d", cfg.TasksPerWorker)
	}
	if cfg.ReduceFanin != 4 {
		t.Errorf("expected reduce_fanin=4, got %d", cfg.ReduceFanin)
	}
	// Untouched keys keep their DefaultConfig values.
	if cfg.MaxRetries != DefaultConfig().MaxRetries {
		t.Errorf("expected max_retries to keep its default, got %d", cfg.MaxRetries)
	}
}

func TestLoadConfigEnvVarOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tasks_per_worker: 5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	os.Setenv("MINISNOWFLAKE_TASKS_PER_WORKER", "9")
	defer os.Unsetenv("MINISNOWFLAKE_TASKS_PER_WORKER")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TasksPerWorker != 9 {
		t.Errorf("expected MINISNOWFLAKE_TASKS_PER_WORKER to override the file value, got %d", cfg.TasksPerWorker)
	}
}

func TestLoadConfigEnvVarOverridesDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("task_timeout: 10s\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	os.Setenv("MINISNOWFLAKE_TASK_TIMEOUT", "250ms")
	defer os.Unsetenv("MINISNOWFLAKE_TASK_TIMEOUT")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TaskTimeout != 250*time.Millisecond {
		t.Errorf("expected task_timeout=250ms from env, got %v", cfg.TaskTimeout)
	}
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
