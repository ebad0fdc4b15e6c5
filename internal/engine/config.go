package engine

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the recognized options from spec §6. Durations are parsed
// by viper from strings like "500ms" / "30s"; zero-value TasksPerWorker,
// ReduceFanin, MaxRetries default per spec when left unset.
type Config struct {
	MaxInFlight         int           `mapstructure:"max_in_flight"`
	TasksPerWorker      int           `mapstructure:"tasks_per_worker"`
	ReduceFanin         int           `mapstructure:"reduce_fanin"`
	TaskTimeout         time.Duration `mapstructure:"task_timeout"`
	QueryTimeout        time.Duration `mapstructure:"query_timeout"`
	AcquireTimeout      time.Duration `mapstructure:"acquire_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	WorkerTTL           time.Duration `mapstructure:"worker_ttl"`
	FailureThreshold    int           `mapstructure:"failure_threshold"`
	CancelGrace         time.Duration `mapstructure:"cancel_grace"`
	DefaultRowsPerShard int           `mapstructure:"default_rows_per_shard"`
}

// DefaultConfig returns the spec's documented defaults (§6): tasks_per_worker
// = 2, reduce_fanin = 8, max_retries = 3. MaxInFlight is left at 0, meaning
// "acquired_worker_count × tasks_per_worker", computed at dispatch time
// once the worker count for a query is known.
func DefaultConfig() Config {
	return Config{
		TasksPerWorker:      2,
		ReduceFanin:         8,
		TaskTimeout:         10 * time.Second,
		QueryTimeout:        60 * time.Second,
		AcquireTimeout:      5 * time.Second,
		MaxRetries:          3,
		WorkerTTL:           15 * time.Second,
		FailureThreshold:    3,
		CancelGrace:         2 * time.Second,
		DefaultRowsPerShard: 100_000,
	}
}

// LoadConfig reads configPath (any format viper supports: YAML, JSON,
// TOML, ...) layered over DefaultConfig, the way the retrieval pack's MCP
// server loads its Postgres/runtime settings through viper rather than
// hand-rolled flag parsing.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("MINISNOWFLAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("max_in_flight", cfg.MaxInFlight)
	v.SetDefault("tasks_per_worker", cfg.TasksPerWorker)
	v.SetDefault("reduce_fanin", cfg.ReduceFanin)
	v.SetDefault("task_timeout", cfg.TaskTimeout)
	v.SetDefault("query_timeout", cfg.QueryTimeout)
	v.SetDefault("acquire_timeout", cfg.AcquireTimeout)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("worker_ttl", cfg.WorkerTTL)
	v.SetDefault("failure_threshold", cfg.FailureThreshold)
	v.SetDefault("cancel_grace", cfg.CancelGrace)
	v.SetDefault("default_rows_per_shard", cfg.DefaultRowsPerShard)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, newError(KindInternal, "read engine config", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, newError(KindInternal, "parse engine config", err)
	}
	return cfg, nil
}

// inFlightLimit resolves max_in_flight for a query dispatched over
// workerCount acquired workers: the configured value if set, otherwise
// workerCount × tasks_per_worker (spec §4.5).
func (c Config) inFlightLimit(workerCount int) int {
	if c.MaxInFlight > 0 {
		return c.MaxInFlight
	}
	tasksPerWorker := c.TasksPerWorker
	if tasksPerWorker <= 0 {
		tasksPerWorker = 2
	}
	limit := workerCount * tasksPerWorker
	if limit <= 0 {
		limit = 1
	}
	return limit
}
